package notify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"time"
)

// buildMessage assembles a fresh multipart/related{ multipart/alternative{
// text/html }, image(inline, Content-ID: trend_chart) } MIME message for
// one recipient. chart may be nil, in which case no image part is added.
func buildMessage(from, to, subject, html string, chart []byte) ([]byte, error) {
	var buf bytes.Buffer

	related := multipart.NewWriter(&buf)

	headers := textproto.MIMEHeader{}
	headers.Set("From", from)
	headers.Set("To", to)
	headers.Set("Subject", mime.QEncoding.Encode("UTF-8", subject))
	headers.Set("MIME-Version", "1.0")
	headers.Set("Date", time.Now().UTC().Format(time.RFC1123Z))
	headers.Set("Content-Type", fmt.Sprintf("multipart/related; boundary=%s", related.Boundary()))
	if err := writeHeaders(&buf, headers); err != nil {
		return nil, err
	}

	altBuf := &bytes.Buffer{}
	alt := multipart.NewWriter(altBuf)
	htmlHeaders := textproto.MIMEHeader{}
	htmlHeaders.Set("Content-Type", "text/html; charset=UTF-8")
	htmlHeaders.Set("Content-Transfer-Encoding", "8bit")
	htmlPart, err := alt.CreatePart(htmlHeaders)
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(html)); err != nil {
		return nil, err
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}

	altHeaders := textproto.MIMEHeader{}
	altHeaders.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%s", alt.Boundary()))
	altPart, err := related.CreatePart(altHeaders)
	if err != nil {
		return nil, err
	}
	if _, err := altPart.Write(altBuf.Bytes()); err != nil {
		return nil, err
	}

	if len(chart) > 0 {
		imgHeaders := textproto.MIMEHeader{}
		imgHeaders.Set("Content-Type", "image/png")
		imgHeaders.Set("Content-Transfer-Encoding", "base64")
		imgHeaders.Set("Content-ID", "<trend_chart>")
		imgHeaders.Set("Content-Disposition", "inline; filename=trend_chart.png")
		imgPart, err := related.CreatePart(imgHeaders)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(chart)
		if _, err := imgPart.Write([]byte(encoded)); err != nil {
			return nil, err
		}
	}

	if err := related.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHeaders(buf *bytes.Buffer, headers textproto.MIMEHeader) error {
	for _, key := range []string{"From", "To", "Subject", "MIME-Version", "Date", "Content-Type"} {
		for _, v := range headers.Values(key) {
			if _, err := fmt.Fprintf(buf, "%s: %s\r\n", key, v); err != nil {
				return err
			}
		}
	}
	_, err := buf.Write([]byte("\r\n"))
	return err
}
