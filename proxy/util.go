package proxy

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"strconv"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
	"github.com/quiterss/adblock/internal/ufhttp"
)

// compressGzip compresses data with gzip.
func compressGzip(data []byte) (b *bytes.Buffer, err error) {
	b = &bytes.Buffer{}
	gz := gzip.NewWriter(b)

	_, err = gz.Write(data)
	if err != nil {
		return nil, errors.WithDeferred(err, gz.Close())
	}

	err = gz.Close()
	if err != nil {
		return nil, err
	}

	return b, nil
}

// newNotFoundResponse returns an empty response with the 404 status.
func newNotFoundResponse(r *http.Request) (res *http.Response) {
	res = proxyutil.NewResponse(http.StatusNotFound, nil, r)
	res.Header.Set(httphdr.ContentType, ufhttp.HdrValTextPlain)

	return res
}

// getQueryParameter returns the value of the query parameter name of r.  It
// returns an empty string if the parameter is absent or repeated.
func getQueryParameter(r *http.Request, name string) (val string) {
	params, ok := r.URL.Query()[name]
	if !ok || len(params) != 1 {
		return ""
	}

	return params[0]
}

// getQueryParameterUint64 is like [getQueryParameter] but parses the value as
// an unsigned integer.  It returns zero if the value can't be parsed.
func getQueryParameterUint64(r *http.Request, name string) (val uint64) {
	val, err := strconv.ParseUint(getQueryParameter(r, name), 10, 64)
	if err != nil {
		return 0
	}

	return val
}
