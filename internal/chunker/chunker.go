// Package chunker splits extracted text into overlapping windows sized for
// an embedding model's context budget. It is a pure function package: no
// I/O, no dependencies, just text in and chunk drafts out, so it is trivial
// to test and safe to call from any goroutine.
package chunker

import (
	"strings"
	"unicode"

	"github.com/dharsanguruparan/ingestkit/internal/extractor"
)

// Policy bounds the size of the chunks produced. Token counts are
// approximated by whitespace-delimited word counts: the reference stack has
// no tokenizer library, and a word-count proxy is the teacher's precedent
// for treating length as an opaque integer budget rather than modeling a
// specific model's byte-pair encoding.
type Policy struct {
	TargetTokens  int
	OverlapTokens int
	HardCeiling   int
}

// DefaultPolicy matches the deployment defaults in internal/config.
var DefaultPolicy = Policy{TargetTokens: 512, OverlapTokens: 64, HardCeiling: 1024}

// Draft is an unpersisted chunk: chunk index, file id and timestamps are
// assigned by the caller once a file/job is known.
type Draft struct {
	Text        string
	TokenCount  int
	PageNumber  *int
	SectionPath *string
}

// Split turns extractor fragments into chunk drafts in order. Each fragment
// is recursively split on paragraph, then sentence, then space boundaries,
// with a whitespace cut as the last resort, until every piece is at or
// under the hard ceiling, then adjacent pieces within a fragment are
// regrouped into target-sized windows with overlap. Text is never cut
// inside a word. An empty input yields zero chunks.
func Split(fragments []extractor.Fragment, policy Policy) []Draft {
	if policy.TargetTokens <= 0 {
		policy = DefaultPolicy
	}

	var drafts []Draft
	for _, frag := range fragments {
		text := strings.TrimSpace(frag.Text)
		if text == "" {
			continue
		}
		pieces := recursiveSplit(text, policy.HardCeiling)
		for _, window := range regroup(pieces, policy) {
			drafts = append(drafts, Draft{
				Text:        window,
				TokenCount:  wordCount(window),
				PageNumber:  frag.PageNumber,
				SectionPath: frag.SectionPath,
			})
		}
	}
	return drafts
}

// recursiveSplit breaks text into pieces no longer than ceiling tokens,
// trying progressively finer separators: paragraphs, then sentences, then
// single spaces, falling back to hardCut when none of those splits the text
// (e.g. words separated only by tabs or single newlines). Since length is
// counted in words, a single word never exceeds the ceiling.
func recursiveSplit(text string, ceiling int) []string {
	if wordCount(text) <= ceiling {
		return []string{text}
	}

	if parts := splitOn(text, "\n\n"); len(parts) > 1 {
		return splitEach(parts, ceiling)
	}
	if parts := splitOnSentences(text); len(parts) > 1 {
		return splitEach(parts, ceiling)
	}
	if parts := splitOn(text, " "); len(parts) > 1 {
		return splitEach(parts, ceiling)
	}
	return hardCut(text, ceiling)
}

func splitEach(parts []string, ceiling int) []string {
	var out []string
	for _, p := range parts {
		out = append(out, recursiveSplit(p, ceiling)...)
	}
	return out
}

func splitOn(text, sep string) []string {
	raw := strings.Split(text, sep)
	var out []string
	for _, r := range raw {
		if strings.TrimSpace(r) != "" {
			out = append(out, r)
		}
	}
	return out
}

func splitOnSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(b.String()); s != "" {
					out = append(out, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// hardCut splits on any whitespace into groups of at most ceiling words when
// no separator makes progress. A single word, however long, is returned
// whole.
func hardCut(text string, ceiling int) []string {
	words := strings.Fields(text)
	if ceiling <= 0 {
		ceiling = 1
	}
	var out []string
	for i := 0; i < len(words); i += ceiling {
		end := i + ceiling
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[i:end], " "))
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// regroup merges small pieces and applies target-size windows with overlap
// across consecutive pieces, so a chunk isn't just one tiny sentence and
// adjacent chunks share context at their boundary.
func regroup(pieces []string, policy Policy) []string {
	if len(pieces) == 0 {
		return nil
	}

	words := strings.Fields(strings.Join(pieces, " "))
	if len(words) == 0 {
		return nil
	}

	step := policy.TargetTokens - policy.OverlapTokens
	if step <= 0 {
		step = policy.TargetTokens
	}
	if step <= 0 {
		step = 1
	}

	var out []string
	for start := 0; start < len(words); start += step {
		end := start + policy.TargetTokens
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
