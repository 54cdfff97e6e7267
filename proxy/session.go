package proxy

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/rules"
)

// Session contains all the data necessary to filter a request and its
// response.  The data are updated throughout the lifetime of the request.
//
// There are two stages of the lifetime:
//
//  1. The request headers are received.  The type of the resource is assumed
//     from the URL and the "Accept" header, and the request is classified.
//     If it must be blocked, the proxy responds with the blocked page.
//
//  2. The response headers are received.  The "Content-Type" header tells
//     the type of the resource for sure, so the request is classified again.
//     Either it is blocked, or the element hiding content script is injected
//     into an HTML page, or the response is passed as is.
type Session struct {
	// Filter describes the request for the matcher.
	Filter *adblock.FilterContext

	// HTTPRequest is the HTTP request data.
	HTTPRequest *http.Request

	// HTTPResponse is the HTTP response data.  It is nil until the response
	// is received.
	HTTPResponse *http.Response

	// ID is the session identifier.
	ID string

	// Hostname is the hostname of the request.
	Hostname string

	// MediaType is the MIME media type of the response.
	MediaType string

	// Charset is the charset of the response, if it is set in the
	// "Content-Type" header.
	Charset string

	// Result is the result of the latest classification.
	Result adblock.Result
}

// NewSession creates a new session for the request with the given unique id.
func NewSession(id string, req *http.Request) (s *Session) {
	return &Session{
		Filter:      newFilterContext(req, assumeRequestType(req, nil)),
		HTTPRequest: req,
		ID:          id,
		Hostname:    req.URL.Hostname(),
	}
}

// newFilterContext returns the description of req for the matcher.  The
// document of a page request is the page itself, otherwise it is taken from
// the "Referer" header.
func newFilterContext(req *http.Request, requestType rules.RequestType) (fc *adblock.FilterContext) {
	fc = &adblock.FilterContext{
		URL:          req.URL.String(),
		ResourceType: requestType,
	}

	if requestType == rules.TypeDocument {
		fc.DocumentDomain = req.URL.Hostname()
		fc.DocumentURL = fc.URL

		return fc
	}

	referer := req.Referer()
	if referer == "" {
		return fc
	}

	u, err := url.Parse(referer)
	if err != nil {
		return fc
	}

	fc.DocumentDomain = u.Hostname()
	fc.DocumentURL = referer

	return fc
}

// SetResponse sets the response of the session.  It may change the type of
// the request.
func (s *Session) SetResponse(res *http.Response) {
	s.HTTPResponse = res

	requestType := assumeRequestType(s.HTTPRequest, res)
	if requestType != s.Filter.ResourceType {
		s.Filter = newFilterContext(s.HTTPRequest, requestType)
	}

	contentType := res.Header.Get(httphdr.ContentType)
	mediaType, params, _ := mime.ParseMediaType(contentType)

	s.MediaType = mediaType
	if charset, ok := params["charset"]; ok {
		s.Charset = charset
	}
}

// assumeRequestType assumes the type of the request from what is known at
// this point.  res is nil if the response is not received yet.
func assumeRequestType(req *http.Request, res *http.Response) (requestType rules.RequestType) {
	if res != nil {
		mediaType, _, _ := mime.ParseMediaType(res.Header.Get(httphdr.ContentType))
		requestType = assumeRequestTypeFromMediaType(mediaType)
		if requestType != rules.TypeOther {
			return requestType
		}
	}

	requestType = assumeRequestTypeFromMediaType(req.Header.Get(httphdr.Accept))
	if requestType == rules.TypeOther {
		requestType = assumeRequestTypeFromURL(req.URL)
	}

	return requestType
}

// mediaTypePrefixes are the prefixes of the media types in the order of
// checking.
var mediaTypePrefixes = []struct {
	prefix      string
	requestType rules.RequestType
}{{
	prefix:      "application/xhtml",
	requestType: rules.TypeDocument,
}, {
	prefix:      "text/html",
	requestType: rules.TypeDocument,
}, {
	prefix:      "text/css",
	requestType: rules.TypeStylesheet,
}, {
	prefix:      "application/javascript",
	requestType: rules.TypeScript,
}, {
	prefix:      "application/x-javascript",
	requestType: rules.TypeScript,
}, {
	prefix:      "text/javascript",
	requestType: rules.TypeScript,
}, {
	prefix:      "image/",
	requestType: rules.TypeImage,
}, {
	prefix:      "application/x-shockwave-flash",
	requestType: rules.TypeObject,
}, {
	prefix:      "application/font",
	requestType: rules.TypeFont,
}, {
	prefix:      "application/vnd.ms-fontobject",
	requestType: rules.TypeFont,
}, {
	prefix:      "application/x-font-",
	requestType: rules.TypeFont,
}, {
	prefix:      "font/",
	requestType: rules.TypeFont,
}, {
	prefix:      "audio/",
	requestType: rules.TypeMedia,
}, {
	prefix:      "video/",
	requestType: rules.TypeMedia,
}, {
	prefix:      "application/json",
	requestType: rules.TypeXmlhttprequest,
}}

// assumeRequestTypeFromMediaType detects the type of the request from the
// media type or the value of the "Accept" header.
func assumeRequestTypeFromMediaType(mediaType string) (requestType rules.RequestType) {
	for _, p := range mediaTypePrefixes {
		if strings.HasPrefix(mediaType, p.prefix) {
			return p.requestType
		}
	}

	return rules.TypeOther
}

// fileExtensions maps the file extensions to the types of the requests.
var fileExtensions = map[string]rules.RequestType{
	// $script
	".js":     rules.TypeScript,
	".vbs":    rules.TypeScript,
	".coffee": rules.TypeScript,
	// $image
	".jpg":  rules.TypeImage,
	".jpeg": rules.TypeImage,
	".gif":  rules.TypeImage,
	".png":  rules.TypeImage,
	".tiff": rules.TypeImage,
	".psd":  rules.TypeImage,
	".ico":  rules.TypeImage,
	".svg":  rules.TypeImage,
	".webp": rules.TypeImage,
	// $stylesheet
	".css":  rules.TypeStylesheet,
	".less": rules.TypeStylesheet,
	// $object
	".jar": rules.TypeObject,
	".swf": rules.TypeObject,
	// $media
	".wav":  rules.TypeMedia,
	".mp3":  rules.TypeMedia,
	".mp4":  rules.TypeMedia,
	".avi":  rules.TypeMedia,
	".flv":  rules.TypeMedia,
	".m3u":  rules.TypeMedia,
	".webm": rules.TypeMedia,
	".mpeg": rules.TypeMedia,
	".3gp":  rules.TypeMedia,
	".ogg":  rules.TypeMedia,
	".mov":  rules.TypeMedia,
	".mkv":  rules.TypeMedia,
	// $font
	".ttf":   rules.TypeFont,
	".otf":   rules.TypeFont,
	".woff":  rules.TypeFont,
	".woff2": rules.TypeFont,
	".eot":   rules.TypeFont,
	// $xmlhttprequest
	".json": rules.TypeXmlhttprequest,
}

// assumeRequestTypeFromURL assumes the type of the request from the file
// extension in u.
func assumeRequestTypeFromURL(u *url.URL) (requestType rules.RequestType) {
	requestType, ok := fileExtensions[strings.ToLower(path.Ext(u.Path))]
	if !ok {
		return rules.TypeOther
	}

	return requestType
}
