package mimeutil

import (
	"encoding/base64"
	"io"
)

// newBase64Reader wraps r in a base64 stdlib decoder, tolerating line-folded
// input (standard encoding ignores whitespace when read incrementally only
// via the NewDecoder helper, so we normalize by reading through a
// line-stripping filter first).
func newBase64Reader(r io.Reader) io.Reader {
	return base64.NewDecoder(base64.StdEncoding, &whitespaceStrippingReader{r: r})
}

// whitespaceStrippingReader removes CR/LF so folded base64 bodies decode
// cleanly.
type whitespaceStrippingReader struct {
	r io.Reader
}

func (w *whitespaceStrippingReader) Read(p []byte) (int, error) {
	buf := make([]byte, len(p))
	n, err := w.r.Read(buf)
	j := 0
	for i := 0; i < n; i++ {
		if buf[i] == '\r' || buf[i] == '\n' {
			continue
		}
		p[j] = buf[i]
		j++
	}
	return j, err
}
