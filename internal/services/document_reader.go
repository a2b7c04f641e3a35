package services

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyDocument   = errors.New("no text content found in document")
)

var extensionTypes = map[string]string{
	".pdf":  MimePDF,
	".docx": MimeDOCX,
	".txt":  MimeText,
	".md":   MimeText,
}

// DocumentReader turns uploaded or indexed files into plain text.
type DocumentReader interface {
	// DetectType resolves the declared content type, falling back to the file
	// extension. Types outside the allow-list return ErrUnsupportedType.
	DetectType(filename, declared string) (string, error)
	ExtractText(mimeType string, data []byte) (string, error)
}

type documentReader struct{}

func NewDocumentReader() DocumentReader {
	return &documentReader{}
}

func (r *documentReader) DetectType(filename, declared string) (string, error) {
	mimeType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch mimeType {
	case MimePDF, MimeDOCX, MimeText:
		return mimeType, nil
	case "", "application/octet-stream":
		ext := strings.ToLower(filepath.Ext(filename))
		if t, ok := extensionTypes[ext]; ok {
			return t, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, orPlaceholder(mimeType, filepath.Ext(filename)))
}

func (r *documentReader) ExtractText(mimeType string, data []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch mimeType {
	case MimeText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("text file is not valid UTF-8")
		}
		text = string(data)
	case MimePDF:
		text, err = extractPDFText(data)
	case MimeDOCX:
		text, err = extractDocxText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if err != nil {
		return "", err
	}

	text = CleanText(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func extractPDFText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("failed to read PDF: %v", rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var textBuilder strings.Builder
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			// unreadable pages are skipped
			continue
		}

		textBuilder.WriteString(pageText)
		textBuilder.WriteString("\n\n")
	}

	return textBuilder.String(), nil
}

func extractDocxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	return stripDocxMarkup(doc.Editable().GetContent()), nil
}

// stripDocxMarkup keeps the text of a document.xml body, one paragraph per line.
func stripDocxMarkup(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")

	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(b.String())
}

// CleanText trims every line and drops blank ones.
func CleanText(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	cleanedLines := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, "\n")
}
