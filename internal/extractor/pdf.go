package extractor

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// PDFExtractor extracts plain text from PDF files page by page, stamping
// each fragment with its 1-based page number.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (e *PDFExtractor) Kind() model.JobKind { return model.JobFileProcessing }

func (e *PDFExtractor) IsCPUBound() bool { return true }

func (e *PDFExtractor) Extract(ctx context.Context, src Source) ([]Fragment, error) {
	reader := bytes.NewReader(src.Data)
	doc, err := pdf.NewReader(reader, int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}

	total := doc.NumPage()
	fragments := make([]Fragment, 0, total)
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if content == "" {
			continue
		}
		pageNum := page
		fragments = append(fragments, Fragment{Text: content, PageNumber: &pageNum})
	}
	return fragments, nil
}
