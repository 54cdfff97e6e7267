package proxy

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
)

// blockedPage is the page returned instead of a blocked resource.
const blockedPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Blocked</title>
</head>
<body>
<h1>Request to {{.Hostname}} is blocked</h1>
<p>The request is blocked by the filter rule:</p>
<pre>{{.RuleText}}</pre>
</body>
</html>
`

var blockedPageTmpl = template.Must(template.New("blockedPage").Parse(blockedPage))

type blockedPageParameters struct {
	Hostname string
	RuleText string
}

// buildBlockedPage builds the content of the blocked page.
func buildBlockedPage(session *Session) (page string, err error) {
	params := blockedPageParameters{
		Hostname: session.Hostname,
	}

	if r := session.Result.BlockRule; r != nil {
		params.RuleText = r.Text()
	}

	data := &bytes.Buffer{}
	err = blockedPageTmpl.Execute(data, params)
	if err != nil {
		return "", err
	}

	return data.String(), nil
}

// newBlockedResponse creates the HTTP response for the blocked request.
func (s *Server) newBlockedResponse(ctx context.Context, session *Session) (res *http.Response) {
	page, err := buildBlockedPage(session)
	if err != nil {
		s.logger.ErrorContext(ctx, "building blocked page", slogutil.KeyError, err)
	}

	res = proxyutil.NewResponse(http.StatusInternalServerError, bytes.NewBufferString(page), session.HTTPRequest)
	res.Close = true
	res.Header.Set(httphdr.ContentType, "text/html; charset=utf-8")

	return res
}
