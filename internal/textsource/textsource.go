// Package textsource produces raw text from uploaded document blobs: the PDF
// text layer for PDFs, vision OCR for images and passthrough for plain text.
package textsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Media types recognized by Detect
const (
	MediaPDF     = "application/pdf"
	MediaJPEG    = "image/jpeg"
	MediaPNG     = "image/png"
	MediaText    = "text/plain"
	MediaUnknown = "application/octet-stream"
)

var (
	// ErrUnsupported is returned for blobs that are neither PDF, image nor text
	ErrUnsupported = errors.New("unsupported document type")
	// ErrNoOCR is returned when an image arrives and no OCR backend is configured
	ErrNoOCR = errors.New("image OCR is not configured")
	// ErrNoTextLayer is returned for PDFs without extractable text
	ErrNoTextLayer = errors.New("pdf has no text layer")
)

// OCR recognizes text in an image
type OCR interface {
	Recognize(ctx context.Context, mediaType string, data []byte) (string, error)
}

// Extractor turns blobs into raw text
type Extractor struct {
	ocr OCR
}

// New creates an extractor. ocr may be nil, in which case images are rejected.
func New(ocr OCR) *Extractor {
	return &Extractor{ocr: ocr}
}

// Detect sniffs the media type from magic bytes
func Detect(data []byte) string {
	if len(data) == 0 {
		return MediaUnknown
	}
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return MediaPDF
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return MediaJPEG
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}):
		return MediaPNG
	case utf8.Valid(data) && !bytes.ContainsRune(data, 0):
		return MediaText
	}
	// fall back to net/http sniffing for anything else it recognizes
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "text/plain") {
		return MediaText
	}
	return MediaUnknown
}

// RawText returns the text content of a blob
func (e *Extractor) RawText(ctx context.Context, data []byte) (string, error) {
	switch mediaType := Detect(data); mediaType {
	case MediaPDF:
		text, err := PDFText(data)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrNoTextLayer
		}
		return text, nil
	case MediaJPEG, MediaPNG:
		if e.ocr == nil {
			return "", ErrNoOCR
		}
		text, err := e.ocr.Recognize(ctx, mediaType, data)
		if err != nil {
			return "", fmt.Errorf("ocr failed: %w", err)
		}
		return text, nil
	case MediaText:
		return string(data), nil
	default:
		return "", ErrUnsupported
	}
}

// PDFText reads the plain text layer of a PDF. Malformed input is reported
// as an error rather than a panic.
func PDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return string(b), nil
}
