package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// HTMLExtractor fetches a web page and extracts its visible text, annotating
// each fragment with a section_path built from the chain of heading
// ancestors (h1 > h2 > ...) in effect at that point in the document.
type HTMLExtractor struct {
	client *http.Client
}

func NewHTMLExtractor(client *http.Client) *HTMLExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTMLExtractor{client: client}
}

func (e *HTMLExtractor) Kind() model.JobKind { return model.JobURLExtraction }

func (e *HTMLExtractor) IsCPUBound() bool { return true }

func (e *HTMLExtractor) Extract(ctx context.Context, src Source) ([]Fragment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch url: status %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var fragments []Fragment
	var headingStack []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Nav, atom.Footer, atom.Head:
				return
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				var level int
				switch n.DataAtom {
				case atom.H2:
					level = 1
				case atom.H3:
					level = 2
				case atom.H4:
					level = 3
				case atom.H5:
					level = 4
				case atom.H6:
					level = 5
				}
				text := strings.TrimSpace(textContent(n))
				if text != "" {
					if level < len(headingStack) {
						headingStack = headingStack[:level]
					}
					for len(headingStack) < level {
						headingStack = append(headingStack, "")
					}
					headingStack = append(headingStack, text)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				var path *string
				if len(headingStack) > 0 {
					joined := strings.Join(headingStack, " > ")
					path = &joined
				}
				fragments = append(fragments, Fragment{Text: text, SectionPath: path})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := ctx.Err(); err != nil {
				return
			}
			walk(c)
		}
	}
	walk(doc)

	return coalesce(fragments), ctx.Err()
}

// textContent flattens the text of a node and its descendants, used only for
// reading the label of a heading element.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// coalesce merges adjacent fragments that share the same section path, so
// a paragraph split across several text nodes becomes one fragment.
func coalesce(in []Fragment) []Fragment {
	if len(in) == 0 {
		return in
	}
	out := make([]Fragment, 0, len(in))
	cur := in[0]
	samePath := func(a, b *string) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	for _, f := range in[1:] {
		if samePath(cur.SectionPath, f.SectionPath) {
			cur.Text = cur.Text + " " + f.Text
			continue
		}
		out = append(out, cur)
		cur = f
	}
	out = append(out, cur)
	return out
}
