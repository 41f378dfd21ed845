package preview

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	r := New("github")
	src := "# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n~~gone~~\n\n```go\nfunc main() {}\n```\n\n<script>alert(1)</script>\n"

	out, err := r.Render(src)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`<h1 id="title">Title</h1>`, "<table>", "<del>gone</del>", "<pre", "main"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Fatal("raw html not escaped")
	}
}

func TestIsMarkdown(t *testing.T) {
	for p, want := range map[string]bool{
		"README.md":           true,
		"docs/Guide.MARKDOWN": true,
		"main.go":             false,
		"md":                  false,
	} {
		if got := IsMarkdown(p); got != want {
			t.Errorf("IsMarkdown(%q) = %v", p, got)
		}
	}
}
