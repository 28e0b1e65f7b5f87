// Package extract converts raw file bytes into plain text, dispatching on
// MIME type. Binary office formats go through docconv; text-like formats
// are decoded directly.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/drivevectorai/backend/internal/core"
)

// Func extracts plain text from raw file bytes.
type Func func(data []byte) (string, error)

// Registry maps MIME types to extraction functions. Exact entries win over
// prefix entries; prefix entries are tried in registration order.
type Registry struct {
	exact    map[string]Func
	prefixes []prefixRule
}

type prefixRule struct {
	prefix string
	fn     Func
}

// NewRegistry builds the default registry: PDF, Word and OpenDocument text
// via docconv, any text/* subtype decoded as-is, and drive-native documents
// (which arrive pre-exported as plain text) decoded as-is.
func NewRegistry() *Registry {
	r := &Registry{exact: make(map[string]Func)}

	r.Register("application/pdf", docconvFunc("application/pdf"))
	r.Register("application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		docconvFunc("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	r.Register("application/msword", docconvFunc("application/msword"))
	r.Register("application/vnd.oasis.opendocument.text",
		docconvFunc("application/vnd.oasis.opendocument.text"))

	// Drive-native docs are exported as text/plain by the file source before
	// they reach us, so the original MIME type maps to a plain decode.
	r.Register("application/vnd.google-apps.document", plainText)
	r.RegisterPrefix("text/", plainText)

	return r
}

// Register adds or replaces the extractor for an exact MIME type.
func (r *Registry) Register(mimeType string, fn Func) {
	r.exact[normalize(mimeType)] = fn
}

// RegisterPrefix adds an extractor for a MIME type prefix such as "text/".
func (r *Registry) RegisterPrefix(prefix string, fn Func) {
	r.prefixes = append(r.prefixes, prefixRule{prefix: normalize(prefix), fn: fn})
}

// Supported reports whether Extract can handle the MIME type.
func (r *Registry) Supported(mimeType string) bool {
	return r.lookup(normalize(mimeType)) != nil
}

// Extract converts data to plain text. It returns core.ErrUnsupportedFormat
// when no extractor is registered for the MIME type and core.ErrEmptyDocument
// when extraction succeeds but yields no text.
func (r *Registry) Extract(data []byte, mimeType string) (string, error) {
	mt := normalize(mimeType)
	fn := r.lookup(mt)
	if fn == nil {
		return "", fmt.Errorf("no extractor for %q: %w", mimeType, core.ErrUnsupportedFormat)
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", mt, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("extract %s: %w", mt, core.ErrEmptyDocument)
	}
	return text, nil
}

func (r *Registry) lookup(mt string) Func {
	if fn, ok := r.exact[mt]; ok {
		return fn
	}
	for _, rule := range r.prefixes {
		if strings.HasPrefix(mt, rule.prefix) {
			return rule.fn
		}
	}
	return nil
}

// normalize lowercases and strips MIME parameters ("text/plain; charset=x").
func normalize(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

func docconvFunc(mimeType string) Func {
	return func(data []byte) (string, error) {
		res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
		if err != nil {
			return "", fmt.Errorf("docconv: %w", err)
		}
		return res.Body, nil
	}
}

// plainText decodes bytes as UTF-8, dropping invalid sequences the way a
// lossy decode would.
func plainText(data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), ""), nil
}
