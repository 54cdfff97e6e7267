package proxy

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
)

// filterHTML replaces the body of the response of session with the one that
// loads the content script.  Compressed bodies are left as is.
func (s *Server) filterHTML(session *Session) (err error) {
	res := session.HTTPResponse
	if enc := res.Header.Get(httphdr.ContentEncoding); enc != "" && enc != "identity" {
		return nil
	}

	code, err := s.buildInjectionCode(session)
	if err != nil {
		return fmt.Errorf("building injection code: %w", err)
	}

	body, err := decodeLatin1(res.Body)
	err = errors.WithDeferred(err, res.Body.Close())
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	modified, err := encodeLatin1(injectScript(body, code))
	if err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}

	res.Body = io.NopCloser(bytes.NewReader(modified))
	res.ContentLength = int64(len(modified))
	res.Header.Set(httphdr.ContentLength, strconv.Itoa(len(modified)))

	return nil
}

// injectScript inserts code into the HTML page body before the closing head
// tag, after the opening body tag, or at the beginning of the page, whichever
// is found first.
func injectScript(body, code string) (modified string) {
	lower := strings.ToLower(body)
	if i := strings.Index(lower, "</head>"); i >= 0 {
		return body[:i] + code + body[i:]
	}

	if i := strings.Index(lower, "<body"); i >= 0 {
		if end := strings.IndexByte(body[i:], '>'); end >= 0 {
			i += end + 1

			return body[:i] + code + body[i:]
		}
	}

	return code + body
}
