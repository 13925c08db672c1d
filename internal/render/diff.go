package render

import (
	"html"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff returns an HTML fragment showing the changes from old to new as
// <ins>, <del> and <span> runs.
func Diff(old, new string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		text := html.EscapeString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("<ins>" + text + "</ins>")
		case diffmatchpatch.DiffDelete:
			b.WriteString("<del>" + text + "</del>")
		case diffmatchpatch.DiffEqual:
			b.WriteString("<span>" + text + "</span>")
		}
	}
	return b.String()
}
