// Package extract turns document bytes into plain text by MIME type.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/docparse/docparse/internal/parser"
)

// Router dispatches extraction to a per-MIME extractor. Text and HTML
// are handled locally; binary document formats go to the remote
// extraction service when one is registered.
type Router struct {
	remote      parser.Extractor
	remoteMIMEs map[string]struct{}
}

// RemoteMIMETypes are the formats handled by the extraction service.
var RemoteMIMETypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// NewRouter constructs a Router. remote may be nil, in which case binary
// formats are reported as unsupported.
func NewRouter(remote parser.Extractor) *Router {
	mimes := make(map[string]struct{}, len(RemoteMIMETypes))
	for _, m := range RemoteMIMETypes {
		mimes[m] = struct{}{}
	}
	return &Router{remote: remote, remoteMIMEs: mimes}
}

// SupportedFormats lists the MIME types this router can extract.
func (r *Router) SupportedFormats() []string {
	formats := []string{"text/plain", "text/markdown", "text/html"}
	if r.remote != nil {
		formats = append(formats, RemoteMIMETypes...)
	}
	return formats
}

// Extract resolves plain text from document bytes.
func (r *Router) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	mime := normalizeMIME(mimeType)
	switch mime {
	case "text/plain", "text/markdown":
		return extractPlain(data)
	case "text/html":
		return extractHTML(data)
	}
	if _, ok := r.remoteMIMEs[mime]; ok && r.remote != nil {
		return r.remote.Extract(ctx, data, mime)
	}
	return "", fmt.Errorf("mime type %q: %w", mimeType, parser.ErrUnsupportedFormat)
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid UTF-8: %w", parser.ErrCorruptDocument)
	}
	return strings.TrimSpace(string(data)), nil
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w: %w", err, parser.ErrCorruptDocument)
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		parts = append(parts, sel.Text())
	})
	text := strings.Join(parts, "\n")
	if text == "" {
		text = doc.Text()
	}

	// Collapse the whitespace soup goquery leaves behind.
	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}

func normalizeMIME(mimeType string) string {
	mime := strings.TrimSpace(strings.ToLower(mimeType))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}
