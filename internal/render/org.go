package render

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/niklasfasching/go-org/org"
)

// Org renders Emacs Org mode documents.
type Org struct {
	style  string
	policy *bluemonday.Policy
}

// NewOrg creates an Org renderer highlighting source blocks with style.
func NewOrg(style string) *Org {
	return &Org{style: style, policy: newPolicy()}
}

func (o *Org) writer() *org.HTMLWriter {
	w := org.NewHTMLWriter()
	w.HighlightCodeBlock = func(source, lang string, inline bool, params map[string]string) string {
		return highlight(source, lang, o.style)
	}
	return w
}

// Render converts src to sanitised HTML.
func (o *Org) Render(src string) (string, error) {
	doc := org.New().Parse(strings.NewReader(src), "")
	out, err := doc.Write(o.writer())
	if err != nil {
		return "", err
	}
	return o.policy.Sanitize(out), nil
}
