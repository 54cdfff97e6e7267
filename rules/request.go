package rules

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"

	"github.com/quiterss/adblock/internal/ufnet"
	"golang.org/x/net/publicsuffix"
)

// maxURLLength limits the URL length by 4 KiB.  It appears that there can be
// URLs longer than a megabyte, and it makes no sense to go through the whole
// URL.
const maxURLLength = 4 * 1024

// RequestType is the request types enumeration.
type RequestType uint32

const (
	// TypeDocument (main frame) $document
	TypeDocument RequestType = 1 << iota
	// TypeSubdocument (iframe) $subdocument
	TypeSubdocument
	// TypeScript (javascript, etc) $script
	TypeScript
	// TypeStylesheet (css) $stylesheet
	TypeStylesheet
	// TypeObject (flash, etc) $object
	TypeObject
	// TypeImage (any image) $image
	TypeImage
	// TypeXmlhttprequest (ajax/fetch) $xmlhttprequest
	TypeXmlhttprequest
	// TypeMedia (video/music) $media
	TypeMedia
	// TypeFont (any custom font) $font
	TypeFont
	// TypeWebsocket (a websocket connection) $websocket
	TypeWebsocket
	// TypePing (navigator.sendBeacon() or ping attribute on links) $ping
	TypePing
	// TypeOther - any other request type
	TypeOther
)

// requestTypeNames maps option names to request types.
var requestTypeNames = map[string]RequestType{
	"document":          TypeDocument,
	"subdocument":       TypeSubdocument,
	"script":            TypeScript,
	"stylesheet":        TypeStylesheet,
	"object":            TypeObject,
	"object-subrequest": TypeObject,
	"image":             TypeImage,
	"xmlhttprequest":    TypeXmlhttprequest,
	"media":             TypeMedia,
	"font":              TypeFont,
	"websocket":         TypeWebsocket,
	"ping":              TypePing,
	"other":             TypeOther,
}

// ParseRequestType returns the request type with the given option name, for
// example "script".
func ParseRequestType(name string) (t RequestType, err error) {
	t, ok := requestTypeNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown request type %q", name)
	}

	return t, nil
}

// Count returns the count of the enabled flags.
func (t RequestType) Count() (n int) {
	return bits.OnesCount32(uint32(t))
}

// String implements the [fmt.Stringer] interface for RequestType.
func (t RequestType) String() (s string) {
	var names []string
	for name, rt := range requestTypeNames {
		if name != "object-subrequest" && t&rt == rt {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	slices.Sort(names)

	return strings.Join(names, "|")
}

// Request represents a web filtering request with all its necessary
// properties.
type Request struct {
	// URL is the full request URL.
	URL string

	// URLLowerCase is the full request URL in lower case.
	URLLowerCase string

	// Hostname is the hostname to filter.
	Hostname string

	// Domain is the effective top-level domain of the request with an
	// additional label.
	Domain string

	// SourceHostname is the hostname of the document that issued the request.
	SourceHostname string

	// SourceDomain is the effective top-level domain of the source with an
	// additional label.
	SourceDomain string

	// RequestType is the type of the filtering request.
	RequestType RequestType

	// ThirdParty is true if the request domain differs from the document
	// domain.
	ThirdParty bool

	// hostStart and hostEnd are the bounds of the hostname inside the URL.
	hostStart int
	hostEnd   int
}

// NewRequest creates a new instance of *Request and populates its fields.
// documentDomain is the hostname of the top-level page, it may be empty.  A
// zero requestType is treated as [TypeOther].
func NewRequest(url, documentDomain string, requestType RequestType) (r *Request) {
	if len(url) > maxURLLength {
		url = url[:maxURLLength]
	}

	if requestType == 0 {
		requestType = TypeOther
	}

	r = &Request{
		RequestType: requestType,

		URL:          url,
		URLLowerCase: strings.ToLower(url),

		SourceHostname: strings.ToLower(strings.TrimSuffix(documentDomain, ".")),
	}

	r.hostStart, r.hostEnd = ufnet.HostnameBounds(r.URLLowerCase)
	r.Hostname = r.URLLowerCase[r.hostStart:r.hostEnd]

	r.Domain = effectiveTLDPlusOneOrHost(r.Hostname)
	r.SourceDomain = effectiveTLDPlusOneOrHost(r.SourceHostname)

	r.ThirdParty = r.SourceDomain != "" && r.SourceDomain != r.Domain

	return r
}

// NewDocumentRequest returns a request for the top-level document of
// documentDomain.  It is used to check document-level exceptions.
func NewDocumentRequest(documentDomain string) (r *Request) {
	return NewRequest("http://"+documentDomain+"/", documentDomain, TypeDocument)
}

// effectiveTLDPlusOneOrHost returns the eTLD+1 of hostname or hostname itself
// if it cannot be determined.
func effectiveTLDPlusOneOrHost(hostname string) (domain string) {
	if domain = effectiveTLDPlusOne(hostname); domain != "" {
		return domain
	}

	return hostname
}

// effectiveTLDPlusOne is a faster version of publicsuffix.EffectiveTLDPlusOne
// that avoids using fmt.Errorf when the domain is less or equal the suffix.
func effectiveTLDPlusOne(hostname string) (domain string) {
	hostnameLen := len(hostname)
	if hostnameLen < 1 {
		return ""
	}

	if hostname[0] == '.' || hostname[hostnameLen-1] == '.' {
		return ""
	}

	suffix, _ := publicsuffix.PublicSuffix(hostname)

	i := hostnameLen - len(suffix) - 1
	if i < 0 || hostname[i] != '.' {
		return ""
	}

	return hostname[1+strings.LastIndex(hostname[:i], "."):]
}
