package providers

import (
	"bytes"
	"io"
	"net/url"
)

func bytesReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

// resolveURL joins a possibly-relative href against the page it was
// found on, returning href unchanged if it is already absolute or if
// the base fails to parse.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
