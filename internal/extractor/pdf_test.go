package extractor

import (
	"context"
	"testing"
)

func TestPDFExtractorKindAndCPUBound(t *testing.T) {
	e := NewPDFExtractor()
	if e.Kind() != "file_processing" {
		t.Fatalf("unexpected kind: %v", e.Kind())
	}
	if !e.IsCPUBound() {
		t.Fatal("pdf parsing should be treated as CPU-bound")
	}
}

func TestPDFExtractorRejectsInvalidData(t *testing.T) {
	e := NewPDFExtractor()
	_, err := e.Extract(context.Background(), Source{Data: []byte("not a pdf")})
	if err == nil {
		t.Fatal("expected error for malformed pdf bytes")
	}
}
