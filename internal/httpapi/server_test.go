package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestAllowedType(t *testing.T) {
	allowed := []string{"application/pdf", "text/plain"}
	if !allowedType("application/pdf", allowed) {
		t.Fatal("expected application/pdf to be allowed")
	}
	if !allowedType("text/plain; charset=utf-8", allowed) {
		t.Fatal("expected charset parameter to be stripped before matching")
	}
	if allowedType("image/png", allowed) {
		t.Fatal("expected image/png to be rejected")
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/x?limit=25&bad=abc&neg=-3", nil)
	if got := queryInt(req, "limit", 10); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	if got := queryInt(req, "missing", 10); got != 10 {
		t.Fatalf("expected default 10, got %d", got)
	}
	if got := queryInt(req, "bad", 10); got != 10 {
		t.Fatalf("expected default for unparseable value, got %d", got)
	}
	if got := queryInt(req, "neg", 10); got != 10 {
		t.Fatalf("expected default for negative value, got %d", got)
	}
}

func TestShiftPath(t *testing.T) {
	cases := []struct {
		in         string
		head, rest string
	}{
		{"/a/b/c", "a", "b/c"},
		{"a/b", "a", "b"},
		{"/a", "a", ""},
		{"", "", ""},
		{"/", "", ""},
	}
	for _, c := range cases {
		head, rest := shiftPath(c.in)
		if head != c.head || rest != c.rest {
			t.Errorf("shiftPath(%q) = (%q, %q), want (%q, %q)", c.in, head, rest, c.head, c.rest)
		}
	}
}
