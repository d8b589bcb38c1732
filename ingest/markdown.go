package ingest

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// markdownText renders Markdown to HTML and extracts the readable text, so
// emphasis markers, link syntax and fences do not reach the prompt.
func markdownText(data []byte) (string, string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(data, &buf); err != nil {
		return "", "", err
	}
	_, text, err := htmlText(buf.Bytes())
	if err != nil {
		return "", "", err
	}
	return "", text, nil
}
