// Package extractor turns a raw ingestion source (an uploaded file, a web
// page, a YouTube video) into a sequence of text fragments the chunker can
// split further. Each extractor owns the parsing concern for exactly one
// source kind; the registry dispatches by job kind and file MIME type.
package extractor

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// Fragment is one piece of extracted text along with whatever positional
// metadata the source format can offer. The chunker splits each fragment
// separately; PageNumber and SectionPath travel with the fragment so the
// chunker can stamp them onto the chunks it produces.
type Fragment struct {
	Text        string
	PageNumber  *int
	SectionPath *string
}

// Source bundles everything an Extractor might need, with only the fields
// relevant to its kind populated.
type Source struct {
	Data     []byte
	MimeType string
	URL      string
}

// Extractor produces text fragments from one kind of source.
type Extractor interface {
	// Kind reports which job kind this extractor serves.
	Kind() model.JobKind
	// IsCPUBound reports whether Extract should run on the CPU-bound worker
	// pool rather than inline with I/O-bound stages.
	IsCPUBound() bool
	// Extract parses the source into ordered text fragments.
	Extract(ctx context.Context, src Source) ([]Fragment, error)
}

// Registry dispatches to the right Extractor for a job.
type Registry struct {
	byKind map[model.JobKind]Extractor
	byMime map[string]Extractor
}

// NewRegistry builds a registry from the given extractors, indexed by their
// Kind. MIME-type dispatch for file_processing jobs is configured separately
// with RegisterMime.
func NewRegistry(extractors ...Extractor) *Registry {
	reg := &Registry{
		byKind: make(map[model.JobKind]Extractor),
		byMime: make(map[string]Extractor),
	}
	for _, e := range extractors {
		reg.byKind[e.Kind()] = e
	}
	return reg
}

// RegisterMime binds a MIME type to the file_processing extractor that
// should handle it, so file_processing jobs can dispatch on the uploaded
// file's content type instead of a single fixed extractor.
func (r *Registry) RegisterMime(mimeType string, e Extractor) {
	r.byMime[mimeType] = e
}

// For returns the extractor for a job kind, consulting MIME-based dispatch
// for file_processing jobs.
func (r *Registry) For(kind model.JobKind, mimeType string) (Extractor, error) {
	if kind == model.JobFileProcessing {
		if e, ok := r.byMime[mimeType]; ok {
			return e, nil
		}
		return nil, fmt.Errorf("no extractor registered for mime type %q", mimeType)
	}
	if e, ok := r.byKind[kind]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("no extractor registered for job kind %q", kind)
}
