package extractor

import (
	"testing"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

func TestRegistryDispatchesByKindForNonFileJobs(t *testing.T) {
	reg := NewRegistry(NewHTMLExtractor(nil), NewYoutubeExtractor(nil))

	e, err := reg.For(model.JobURLExtraction, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Kind() != model.JobURLExtraction {
		t.Fatalf("expected html extractor, got kind %v", e.Kind())
	}
}

func TestRegistryDispatchesByMimeForFileJobs(t *testing.T) {
	reg := NewRegistry(NewPDFExtractor())
	reg.RegisterMime("application/pdf", NewPDFExtractor())
	reg.RegisterMime("text/plain", NewPlaintextExtractor())

	e, err := reg.For(model.JobFileProcessing, "text/plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := e.(*PlaintextExtractor); !ok {
		t.Fatalf("expected plaintext extractor for text/plain, got %T", e)
	}
}

func TestRegistryUnknownMimeReturnsError(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.For(model.JobFileProcessing, "application/octet-stream"); err == nil {
		t.Fatal("expected error for unregistered mime type")
	}
}

func TestRegistryUnknownKindReturnsError(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.For(model.JobURLExtraction, ""); err == nil {
		t.Fatal("expected error for unregistered job kind")
	}
}
