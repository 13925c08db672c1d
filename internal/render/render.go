// Package render turns page source into sanitised HTML.
package render

import (
	"bytes"
	"fmt"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
)

// Renderer converts page source to HTML safe to embed in a page.
type Renderer interface {
	Render(src string) (string, error)
}

// New returns the renderer for format ("markdown" or "org") highlighting
// code with the named chroma style.
func New(format, style string) (Renderer, error) {
	switch format {
	case "markdown":
		return NewMarkdown(style), nil
	case "org":
		return NewOrg(style), nil
	default:
		return nil, fmt.Errorf("unknown render format %q", format)
	}
}

// highlight formats source as an HTML block with chroma classes. It falls
// back to the plain source if tokenising fails.
func highlight(source, lang, style string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return source
	}
	var buf bytes.Buffer
	formatter := html.New(html.WithClasses(true))
	if err := formatter.Format(&buf, styles.Get(style), iterator); err != nil {
		return source
	}
	return buf.String()
}

// StyleCSS returns the stylesheet for the highlighting classes of style.
func StyleCSS(style string) (string, error) {
	var buf bytes.Buffer
	if err := html.New(html.WithClasses(true)).WriteCSS(&buf, styles.Get(style)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func newPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("pre", "code", "span", "div")
	policy.AllowElements("table", "thead", "tbody", "tr", "th", "td")
	policy.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return policy
}
