// Package extract turns uploaded files into plain text for retrieval.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxDocumentBytes is the upload cap checked before any extraction.
const MaxDocumentBytes = 2_000_000

var (
	ErrTooLarge = errors.New("file too large, please use a file under 2MB")
	ErrNoText   = errors.New("no readable text found in this file")
)

type Format int

const (
	FormatText Format = iota
	FormatPDF
	FormatHTML
)

// Extractor converts documents to text. A zero MaxBytes means
// MaxDocumentBytes.
type Extractor struct {
	MaxBytes int64
}

func (e Extractor) limit() int64 {
	if e.MaxBytes <= 0 {
		return MaxDocumentBytes
	}
	return e.MaxBytes
}

// DetectFormat looks at the declared content type, then the file name, then
// the leading bytes.
func DetectFormat(name, contentType string, data []byte) Format {
	contentType = strings.ToLower(contentType)
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case strings.HasPrefix(contentType, "application/pdf"), ext == ".pdf":
		return FormatPDF
	case strings.HasPrefix(contentType, "text/html"), ext == ".html", ext == ".htm":
		return FormatHTML
	case len(data) >= 5 && string(data[:5]) == "%PDF-":
		return FormatPDF
	}
	return FormatText
}

// Extract returns the text of data. Text that is empty after trimming is
// ErrNoText.
func (e Extractor) Extract(name, contentType string, data []byte) (string, error) {
	if int64(len(data)) > e.limit() {
		return "", ErrTooLarge
	}

	var (
		text string
		err  error
	)
	switch DetectFormat(name, contentType, data) {
	case FormatPDF:
		text, err = PDFText(data)
	case FormatHTML:
		text, err = HTMLText(data)
	default:
		if !utf8.Valid(data) {
			return "", ErrNoText
		}
		text = string(data)
	}
	if err != nil {
		return "", fmt.Errorf("unable to read file %s: %w", name, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// ExtractFile checks the size on disk before reading the file.
func (e Extractor) ExtractFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("unable to read file: %s is a directory", path)
	}
	if info.Size() > e.limit() {
		return "", ErrTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}
	return e.Extract(filepath.Base(path), "", data)
}
