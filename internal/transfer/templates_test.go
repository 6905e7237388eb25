package transfer

import (
	"strings"
	"testing"
	"time"

	"promptlib/api/internal/store"
)

func TestRenderLibraryHTMLHighlightsPlaceholders(t *testing.T) {
	page := LibraryPage{
		Title:       "Prompt Library",
		GeneratedAt: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
		Prompts: []store.Prompt{{
			Task:         "Summarize",
			Category:     "Writing",
			Prompt:       "Summarize {{article}} in {{count}} bullets",
			Author:       "Avery",
			LastModified: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
		}},
		Categories: []store.Category{{Name: "Writing"}},
	}

	html, err := RenderLibraryHTML(page)
	if err != nil {
		t.Fatalf("RenderLibraryHTML failed: %v", err)
	}
	if !strings.Contains(html, `<span class="placeholder">{{article}}</span>`) {
		t.Fatalf("placeholders must be highlighted, got:\n%s", html)
	}
	if !strings.Contains(html, "Summarize") || !strings.Contains(html, "Avery") {
		t.Fatal("rendered page must carry the prompt fields")
	}
}

func TestRenderLibraryHTMLEscapesMarkup(t *testing.T) {
	page := LibraryPage{
		Title:       "Prompt Library",
		GeneratedAt: time.Now(),
		Prompts: []store.Prompt{{
			Task:   "<script>alert(1)</script>",
			Prompt: "use <b>bold</b> and {{var}}",
		}},
	}

	html, err := RenderLibraryHTML(page)
	if err != nil {
		t.Fatalf("RenderLibraryHTML failed: %v", err)
	}
	if strings.Contains(html, "<script>") || strings.Contains(html, "<b>bold</b>") {
		t.Fatal("user content must be escaped")
	}
	if !strings.Contains(html, `<span class="placeholder">{{var}}</span>`) {
		t.Fatal("placeholders must still be highlighted after escaping")
	}
}

func TestRenderLibraryHTMLEmptyLibrary(t *testing.T) {
	html, err := RenderLibraryHTML(LibraryPage{Title: "Prompt Library", GeneratedAt: time.Now()})
	if err != nil {
		t.Fatalf("RenderLibraryHTML failed: %v", err)
	}
	if !strings.Contains(html, "The library is empty.") {
		t.Fatal("empty library must render the empty notice")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Prompt Library":    "Prompt-Library",
		"a/b\\c:d":          "abcd",
		"":                  "prompt-library",
		strings.Repeat("x", 80): strings.Repeat("x", 50),
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
