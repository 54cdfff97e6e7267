package proxy

import (
	"context"
	"net"
	"net/http"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
	"github.com/quiterss/adblock"
	"github.com/quiterss/adblock/internal/ufhttp"
	"github.com/quiterss/adblock/rules"
)

// onRequest handles the outgoing HTTP requests.
func (s *Server) onRequest(sess *gomitmproxy.Session) (req *http.Request, res *http.Response) {
	ctx := context.Background()
	r := sess.Request()
	session := NewSession(sess.ID(), r)

	s.logger.DebugContext(ctx, "saving session", "id", session.ID)
	sess.SetProp(sessionPropKey, session)

	if r.Method == http.MethodConnect {
		return nil, nil
	}

	if session.Hostname == s.injectionHost {
		return r, s.buildContentScript(ctx, session)
	}

	session.Result = s.matcher.ClassifyResult(ctx, session.Filter)
	if session.Result.Decision == adblock.DecisionBlock {
		s.logBlocked(ctx, session)

		// Mark the request as blocked so that the response handler skips it.
		sess.SetProp(requestBlockedKey, true)

		return nil, s.newBlockedResponse(ctx, session)
	}

	if session.Filter.ResourceType == rules.TypeDocument {
		// The body of the page is modified, so it must not be compressed.
		r.Header.Del(httphdr.AcceptEncoding)
	}

	if s.shouldSuppressCache(session) {
		suppressCache(r)
	}

	return r, nil
}

// onResponse handles all the responses.
func (s *Server) onResponse(sess *gomitmproxy.Session) (res *http.Response) {
	ctx := context.Background()
	if _, ok := sess.GetProp(requestBlockedKey); ok {
		return nil
	}

	v, ok := sess.GetProp(sessionPropKey)
	if !ok {
		s.logger.ErrorContext(ctx, "session not found", "id", sess.ID())

		return nil
	}

	session, ok := v.(*Session)
	if !ok {
		s.logger.ErrorContext(ctx, "session has bad type", "id", sess.ID(), "type", v)

		return nil
	}

	// The response headers define the type of the resource more precisely, so
	// the request is classified again.
	session.SetResponse(sess.Response())
	session.Result = s.matcher.ClassifyResult(ctx, session.Filter)
	if session.Result.Decision == adblock.DecisionBlock {
		s.logBlocked(ctx, session)

		return s.newBlockedResponse(ctx, session)
	}

	if session.Filter.ResourceType != rules.TypeDocument || session.MediaType != ufhttp.HdrValTextHTML {
		return nil
	}

	if len(s.matcher.CosmeticSelectors(session.Hostname)) == 0 {
		return nil
	}

	err := s.filterHTML(session)
	if err != nil {
		s.logger.ErrorContext(ctx, "filtering html", "id", session.ID, slogutil.KeyError, err)

		return proxyutil.NewErrorResponse(session.HTTPRequest, err)
	}

	return session.HTTPResponse
}

// onConnect intercepts and suppresses the connections to the injection host.
func (s *Server) onConnect(_ *gomitmproxy.Session, _ string, addr string) (conn net.Conn) {
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host == s.injectionHost {
		return &proxyutil.NoopConn{}
	}

	return nil
}

// logBlocked writes the information about the blocked request to the log.
func (s *Server) logBlocked(ctx context.Context, session *Session) {
	s.logger.DebugContext(
		ctx,
		"blocked",
		"id", session.ID,
		"url", session.Filter.URL,
		"rule", session.Result.BlockRule.Text(),
	)
}
