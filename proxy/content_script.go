package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"text/template"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
)

// contentScriptPath is the path of the content script on the injection host.
const contentScriptPath = "/content-script.js"

// injectionCode is the code injected into the filtered pages.
const injectionCode = `<script src="//{{.InjectionHost}}` + contentScriptPath +
	`?hostname={{urlquery .Hostname}}&ts={{.Timestamp}}"></script>`

var injectionTmpl = template.Must(template.New("injectionCode").Parse(injectionCode))

// contentScriptCode adds the element hiding style sheet to the page.
const contentScriptCode = `(function () {
	var style = document.createElement("style");
	style.setAttribute("type", "text/css");
	style.textContent = "{{js .CSS}}";
	(document.head || document.documentElement).appendChild(style);
})();
`

var contentScriptTmpl = template.Must(template.New("contentScriptCode").Parse(contentScriptCode))

type injectionParameters struct {
	Hostname      string
	InjectionHost string

	// Timestamp is used to avoid caching of the script of an outdated server.
	Timestamp int64
}

type contentScriptParameters struct {
	CSS string
}

// buildInjectionCode creates the HTML code for the content script injection.
func (s *Server) buildInjectionCode(session *Session) (code string, err error) {
	params := injectionParameters{
		Hostname:      session.Hostname,
		InjectionHost: s.injectionHost,
		Timestamp:     s.createdAt.Unix(),
	}

	data := &bytes.Buffer{}
	err = injectionTmpl.Execute(data, params)
	if err != nil {
		return "", err
	}

	return data.String(), nil
}

// buildContentScript returns the response with the content script for the
// hostname in the query of the request.
func (s *Server) buildContentScript(ctx context.Context, session *Session) (res *http.Response) {
	r := session.HTTPRequest
	if r.Method != http.MethodGet || r.URL.Path != contentScriptPath {
		return newNotFoundResponse(r)
	}

	hostname := getQueryParameter(r, "hostname")
	ts := int64(getQueryParameterUint64(r, "ts"))
	if hostname == "" || ts == 0 {
		return newNotFoundResponse(r)
	}

	if ts == s.createdAt.Unix() && r.Header.Get("If-Modified-Since") != "" {
		res = proxyutil.NewResponse(http.StatusNotModified, nil, r)
		res.Header.Set(httphdr.ContentType, "text/javascript; charset=utf-8")
		s.enableCache(res)

		return res
	}

	data := &bytes.Buffer{}
	err := contentScriptTmpl.Execute(data, contentScriptParameters{
		CSS: s.matcher.ElementHidingCSS(hostname),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "building content script", slogutil.KeyError, err)

		return proxyutil.NewErrorResponse(r, err)
	}

	var body io.Reader = data
	contentLen := data.Len()
	if s.compress {
		var b *bytes.Buffer
		b, err = compressGzip(data.Bytes())
		if err != nil {
			s.logger.ErrorContext(ctx, "compressing content script", slogutil.KeyError, err)

			return proxyutil.NewErrorResponse(r, err)
		}

		body, contentLen = b, b.Len()
	}

	res = proxyutil.NewResponse(http.StatusOK, body, r)
	res.Header.Set(httphdr.ContentType, "text/javascript; charset=utf-8")
	res.ContentLength = int64(contentLen)
	if s.compress {
		res.Header.Set(httphdr.ContentEncoding, "gzip")
	}

	s.enableCache(res)

	return res
}
