package generator

import (
	"errors"
	"strings"
	"testing"
)

func TestCleanHTML_StripsFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"html fence", "```html\n<h1>Hello</h1>\n```", "<h1>Hello</h1>"},
		{"bare fence", "```\n<p>hi</p>\n```", "<p>hi</p>"},
		{"no fence", "<div>plain</div>", "<div>plain</div>"},
		{"uppercase tag fence", "```HTML\n<span>x</span>\n```", "<span>x</span>"},
		{"surrounding whitespace", "  \n<main>ok</main>\n  ", "<main>ok</main>"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CleanHTML(tc.in)
			if err != nil {
				t.Fatalf("CleanHTML(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("CleanHTML(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanHTML_RejectsEmptyOutput(t *testing.T) {
	for _, in := range []string{"", "```html\n```", "```\n\n```", "   \n  "} {
		if _, err := CleanHTML(in); !errors.Is(err, ErrEmptyArtifact) {
			t.Fatalf("CleanHTML(%q) err = %v, want ErrEmptyArtifact", in, err)
		}
	}
}

func TestCleanHTML_KeepsFullDocuments(t *testing.T) {
	doc := "<!DOCTYPE html><html><head><title>Bakery</title></head><body><h1>Bread</h1></body></html>"
	got, err := CleanHTML("```html\n" + doc + "\n```")
	if err != nil {
		t.Fatalf("CleanHTML: %v", err)
	}
	if got != doc {
		t.Fatalf("CleanHTML mangled document:\n%s", got)
	}
}

func TestSiteName_FromTitle(t *testing.T) {
	name := SiteName("<html><head><title> Padaria do Bairro </title></head><body></body></html>", "fallback")
	if name != "Padaria do Bairro" {
		t.Fatalf("SiteName = %q", name)
	}
}

func TestSiteName_FallsBackToPrompt(t *testing.T) {
	if got := SiteName("<div>no title here</div>", "landing page for a bakery"); got != "landing page for a bakery" {
		t.Fatalf("SiteName = %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := SiteName("<div></div>", long); len([]rune(got)) != 80 {
		t.Fatalf("SiteName did not truncate fallback, len=%d", len(got))
	}
	if got := SiteName("<div>x</div>", "  "); got != "Untitled site" {
		t.Fatalf("SiteName = %q, want Untitled site", got)
	}
}
