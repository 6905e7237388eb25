package transfer

import (
	"bytes"
	"embed"
	"html/template"
	"regexp"
	"time"

	"promptlib/api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var libraryTemplate *template.Template

// placeholderPattern matches the {{variable}} slots prompt authors use to
// mark where callers substitute their own text.
var placeholderPattern = regexp.MustCompile(`\{\{[^{}]+\}\}`)

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"highlightPlaceholders": highlightPlaceholders,
	}

	content, err := templateFS.ReadFile("templates/library.html")
	if err != nil {
		panic("transfer: library template missing: " + err.Error())
	}
	libraryTemplate = template.Must(template.New("library").Funcs(funcMap).Parse(string(content)))
}

// highlightPlaceholders escapes the body and wraps each {{variable}} slot so
// the printable view shows them the way the editor does.
func highlightPlaceholders(body string) template.HTML {
	escaped := template.HTMLEscapeString(body)
	marked := placeholderPattern.ReplaceAllString(escaped, `<span class="placeholder">$0</span>`)
	return template.HTML(marked)
}

// LibraryPage holds the data for the printable library rendering.
type LibraryPage struct {
	Title       string
	GeneratedAt time.Time
	Prompts     []store.Prompt
	Categories  []store.Category
}

// RenderLibraryHTML renders the printable library page.
func RenderLibraryHTML(page LibraryPage) (string, error) {
	var buf bytes.Buffer
	if err := libraryTemplate.Execute(&buf, page); err != nil {
		return "", err
	}
	return buf.String(), nil
}
