package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor converts uploaded file bytes into plain text, best effort.
// Supported kinds: PDF, image (OCR), DOCX. Unsupported extensions yield
// empty text without an error.
type Extractor struct {
	OCR *TesseractOCR
}

// New builds an Extractor with default OCR settings.
func New() *Extractor {
	return &Extractor{OCR: NewTesseractOCR()}
}

// Text extracts UTF-8 text from the file bytes, dispatching on the filename
// extension. No layout fidelity is guaranteed.
func (e *Extractor) Text(ctx context.Context, filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return e.pdfText(data)
	case ".png", ".jpg", ".jpeg":
		return e.OCR.Extract(ctx, bytes.NewReader(data))
	case ".docx":
		return docxText(data)
	default:
		return "", nil
	}
}

// pdfText concatenates per-page plain text in page order, skipping pages the
// parser cannot read.
func (e *Extractor) pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
	}
	return strings.ToValidUTF8(sb.String(), ""), nil
}
