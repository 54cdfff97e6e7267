package proxy

import (
	"io"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// decodeLatin1 reads the whole reader decoding it as Latin-1.  Every byte maps
// to a single rune, so the body of any charset survives the round trip with
// [encodeLatin1].
func decodeLatin1(r io.Reader) (s string, err error) {
	b, err := io.ReadAll(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// encodeLatin1 encodes s as Latin-1.
func encodeLatin1(s string) (b []byte, err error) {
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
}
