package render

import (
	"strings"
	"testing"
)

func TestMarkdownRender(t *testing.T) {
	r := NewMarkdown("friendly")
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{
			name:     "heading",
			input:    "# A page",
			contains: []string{"<h1", "A page</h1>"},
		},
		{
			name:     "fenced code is highlighted",
			input:    "```go\nfunc main() {}\n```\n",
			contains: []string{`class="chroma"`, "main"},
		},
		{
			name:     "script is stripped",
			input:    "hello <script>alert(1)</script>",
			contains: []string{"hello"},
			absent:   []string{"<script>"},
		},
		{
			name:     "table",
			input:    "| a | b |\n|---|---|\n| 1 | 2 |\n",
			contains: []string{"<table>", "<td>1</td>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.input)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("Render(%q) = %q, missing %q", tt.input, got, s)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(got, s) {
					t.Errorf("Render(%q) = %q, should not contain %q", tt.input, got, s)
				}
			}
		})
	}
}

func TestOrgRender(t *testing.T) {
	r := NewOrg("friendly")
	got, err := r.Render("* Heading\n\n#+begin_src go\nfunc main() {}\n#+end_src\n")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(got, "Heading") {
		t.Errorf("Render() = %q, missing heading", got)
	}
	if !strings.Contains(got, "chroma") {
		t.Errorf("Render() = %q, missing highlighted block", got)
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"markdown", "org"} {
		if _, err := New(format, "friendly"); err != nil {
			t.Errorf("New(%q) error = %v", format, err)
		}
	}
	if _, err := New("rst", "friendly"); err == nil {
		t.Error("New(rst) error = nil")
	}
}

func TestDiff(t *testing.T) {
	got := Diff("hello world", "hello <b>there</b>")
	if !strings.Contains(got, "<span>hello </span>") {
		t.Errorf("Diff() = %q, missing equal run", got)
	}
	if !strings.Contains(got, "<del>") || !strings.Contains(got, "<ins>") {
		t.Errorf("Diff() = %q, missing changes", got)
	}
	if strings.Contains(got, "<b>") {
		t.Errorf("Diff() = %q, text not escaped", got)
	}
}

func TestStyleCSS(t *testing.T) {
	css, err := StyleCSS("friendly")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(css, ".chroma") {
		t.Errorf("StyleCSS() missing .chroma rules")
	}
}
