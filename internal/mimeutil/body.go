package mimeutil

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// ExtractedBody holds best-effort plain-text and HTML bodies recovered from
// an inbound message.
type ExtractedBody struct {
	Text string
	HTML string
}

// FromFormFields prefers SendGrid-style inbound-parse form fields ("text",
// "html") when present.
func FromFormFields(text, html string) (ExtractedBody, bool) {
	if text != "" || html != "" {
		return ExtractedBody{Text: text, HTML: html}, true
	}
	return ExtractedBody{}, false
}

// FromRawMIME parses a raw RFC-822 envelope, walking multipart boundaries
// and honoring Content-Transfer-Encoding: base64 | quoted-printable. Returns
// best-effort text/HTML; parts that cannot be decoded are skipped rather
// than failing the whole message.
func FromRawMIME(raw []byte) (ExtractedBody, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ExtractedBody{}, err
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		// No parseable Content-Type: treat the whole body as plain text.
		body, _ := io.ReadAll(msg.Body)
		return ExtractedBody{Text: string(body)}, nil
	}

	var out ExtractedBody
	if strings.HasPrefix(mediaType, "multipart/") {
		walkMultipart(multipart.NewReader(msg.Body, params["boundary"]), &out)
		return out, nil
	}

	body, _ := io.ReadAll(decodeTransferEncoding(msg.Body, msg.Header.Get("Content-Transfer-Encoding")))
	assignByType(mediaType, string(body), &out)
	return out, nil
}

func walkMultipart(r *multipart.Reader, out *ExtractedBody) {
	for {
		part, err := r.NextPart()
		if err != nil {
			return
		}
		contentType := part.Header.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			walkMultipart(multipart.NewReader(part, params["boundary"]), out)
			continue
		}

		decoded, _ := io.ReadAll(decodeTransferEncoding(part, part.Header.Get("Content-Transfer-Encoding")))
		assignByType(mediaType, string(decoded), out)
	}
}

func assignByType(mediaType, body string, out *ExtractedBody) {
	switch mediaType {
	case "text/html":
		if out.HTML == "" {
			out.HTML = body
		}
	case "text/plain":
		if out.Text == "" {
			out.Text = body
		}
	}
}

func decodeTransferEncoding(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return newBase64Reader(r)
	default:
		return r
	}
}
