// Package ingest converts retrieval documents into the plain text placed in
// an agent's Context section. The conversion is chosen by file extension:
// plain text is passed through, Markdown is rendered with goldmark and
// HTML is reduced to its readable text.
package ingest

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrUnsupported is returned for documents whose extension has no converter.
var ErrUnsupported = errors.New("unsupported document type")

// Document is the text form of one retrieval document.
type Document struct {
	Key   string
	Title string
	Text  string
}

type converter func(data []byte) (title, text string, err error)

var converters = map[string]converter{
	".txt":      plainText,
	".text":     plainText,
	".csv":      plainText,
	".json":     plainText,
	".yaml":     plainText,
	".yml":      plainText,
	".toml":     plainText,
	".md":       markdownText,
	".markdown": markdownText,
	".html":     htmlText,
	".htm":      htmlText,
}

// Supported reports whether key has a converter.
func Supported(key string) bool {
	_, ok := converters[strings.ToLower(path.Ext(key))]
	return ok
}

// Extract converts data to a Document using the converter for key's
// extension.
func Extract(key string, data []byte) (Document, error) {
	conv, ok := converters[strings.ToLower(path.Ext(key))]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}

	title, text, err := conv(data)
	if err != nil {
		return Document{}, fmt.Errorf("extract %s: %w", key, err)
	}
	return Document{Key: key, Title: title, Text: text}, nil
}

// Join renders documents as one block of text, each introduced by its
// title (or key when untitled). Documents with no text are omitted.
func Join(docs []Document) string {
	var b strings.Builder
	for _, d := range docs {
		if d.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		name := d.Title
		if name == "" {
			name = d.Key
		}
		b.WriteString("[")
		b.WriteString(name)
		b.WriteString("]\n")
		b.WriteString(d.Text)
	}
	return b.String()
}

func plainText(data []byte) (string, string, error) {
	return "", strings.TrimSpace(string(data)), nil
}
