package extractor

import (
	"context"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// PlaintextExtractor passes uploaded text/plain files through unchanged, as
// a single fragment with no page or section metadata.
type PlaintextExtractor struct{}

func NewPlaintextExtractor() *PlaintextExtractor { return &PlaintextExtractor{} }

func (e *PlaintextExtractor) Kind() model.JobKind { return model.JobFileProcessing }

func (e *PlaintextExtractor) IsCPUBound() bool { return false }

func (e *PlaintextExtractor) Extract(ctx context.Context, src Source) ([]Fragment, error) {
	return []Fragment{{Text: string(src.Data)}}, nil
}
