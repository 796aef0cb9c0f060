package chunker

import (
	"strconv"
	"strings"
	"testing"

	"github.com/dharsanguruparan/ingestkit/internal/extractor"
)

func TestSplitEmptyInput(t *testing.T) {
	if got := Split(nil, DefaultPolicy); got != nil {
		t.Fatalf("expected nil drafts for empty input, got %v", got)
	}
}

func TestSplitSkipsBlankFragments(t *testing.T) {
	frags := []extractor.Fragment{{Text: "   "}, {Text: "\n\n"}}
	if got := Split(frags, DefaultPolicy); len(got) != 0 {
		t.Fatalf("expected no drafts from blank fragments, got %d", len(got))
	}
}

func TestSplitSingleShortFragment(t *testing.T) {
	frags := []extractor.Fragment{{Text: "a short paragraph of text."}}
	drafts := Split(frags, DefaultPolicy)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	if drafts[0].Text != "a short paragraph of text." {
		t.Fatalf("unexpected text: %q", drafts[0].Text)
	}
}

func TestSplitPreservesPageAndSectionAnnotations(t *testing.T) {
	page := 3
	section := "Intro > Background"
	frags := []extractor.Fragment{{Text: "some content here.", PageNumber: &page, SectionPath: &section}}
	drafts := Split(frags, DefaultPolicy)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	if drafts[0].PageNumber == nil || *drafts[0].PageNumber != 3 {
		t.Fatalf("page number not preserved: %v", drafts[0].PageNumber)
	}
	if drafts[0].SectionPath == nil || *drafts[0].SectionPath != section {
		t.Fatalf("section path not preserved: %v", drafts[0].SectionPath)
	}
}

func TestSplitLongTextProducesOverlappingWindows(t *testing.T) {
	words := make([]string, 2000)
	for i := range words {
		words[i] = "word" + strconv.Itoa(i)
	}
	text := strings.Join(words, " ")
	drafts := Split([]extractor.Fragment{{Text: text}}, DefaultPolicy)
	if len(drafts) < 2 {
		t.Fatalf("expected multiple windows for long text, got %d", len(drafts))
	}
	for _, d := range drafts {
		if d.TokenCount > DefaultPolicy.HardCeiling {
			t.Fatalf("draft exceeds hard ceiling: %d tokens", d.TokenCount)
		}
	}
	firstWords := strings.Fields(drafts[0].Text)
	secondWords := strings.Fields(drafts[1].Text)
	if firstWords[len(firstWords)-1] == secondWords[0] {
		return
	}
	found := false
	for _, w := range secondWords[:DefaultPolicy.OverlapTokens] {
		if w == firstWords[len(firstWords)-1] {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected overlap between consecutive windows")
	}
}

func TestSplitHandlesPathologicallyLongWord(t *testing.T) {
	policy := Policy{TargetTokens: 10, OverlapTokens: 2, HardCeiling: 5}
	longWord := strings.Repeat("x", 10000)
	drafts := Split([]extractor.Fragment{{Text: longWord}}, policy)
	if len(drafts) == 0 {
		t.Fatalf("expected at least one draft")
	}
}

func TestRecursiveSplitOnParagraphs(t *testing.T) {
	text := strings.Repeat("word ", 600) + "\n\n" + strings.Repeat("other ", 600)
	pieces := recursiveSplit(text, 512)
	if len(pieces) < 2 {
		t.Fatalf("expected paragraph split to produce multiple pieces, got %d", len(pieces))
	}
}

func TestSplitOnSentences(t *testing.T) {
	text := "First sentence. Second sentence! Third sentence?"
	got := splitOnSentences(text)
	want := []string{"First sentence.", "Second sentence!", "Third sentence?"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentence %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestWordCount(t *testing.T) {
	if wordCount("one two three") != 3 {
		t.Fatalf("expected 3 words")
	}
	if wordCount("") != 0 {
		t.Fatalf("expected 0 words for empty string")
	}
}

func TestDefaultPolicyUsedWhenZeroValue(t *testing.T) {
	drafts := Split([]extractor.Fragment{{Text: "hello world"}}, Policy{})
	if len(drafts) != 1 {
		t.Fatalf("expected zero-value policy to fall back to defaults")
	}
}
