package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// PlainText reads the PDF text layer in-process. Scanned PDFs without a text
// layer come back empty.
type PlainText struct{}

func (PlainText) Name() string { return "pdf" }

func (PlainText) Extract(ctx context.Context, path string) (txt string, err error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("pdf path required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			txt, err = "", fmt.Errorf("pdf parse %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Fallback tries each extractor in order and keeps the first non-empty text.
// If every extractor fails the joined errors are returned. Empty text from any
// extractor with no later success yields empty text and no error.
type Fallback struct {
	Extractors []Extractor
}

func NewFallback(extractors ...Extractor) *Fallback {
	return &Fallback{Extractors: extractors}
}

func (f *Fallback) Name() string {
	names := make([]string, 0, len(f.Extractors))
	for _, ex := range f.Extractors {
		names = append(names, ex.Name())
	}
	return strings.Join(names, "+")
}

func (f *Fallback) Extract(ctx context.Context, path string) (string, error) {
	var (
		errs  []error
		empty bool
	)
	for _, ex := range f.Extractors {
		txt, err := ex.Extract(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))
			continue
		}
		if strings.TrimSpace(txt) != "" {
			return txt, nil
		}
		empty = true
	}
	if empty {
		return "", nil
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("no extractor configured")
	}
	return "", errors.Join(errs...)
}
