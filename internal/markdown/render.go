// Package markdown converts model-authored markdown into the HTML fragments
// shown by the brief viewer.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
)

// List classes expected by the viewer stylesheet.
const (
	ClassUnordered = "custom-list"
	ClassOrdered   = "custom-list-ol"
	ClassItem      = "custom-list-item"
)

// Renderer renders GitHub-flavoured markdown with styled lists.
type Renderer struct {
	md goldmark.Markdown
}

var _ brief.Renderer = (*Renderer)(nil)

// New builds a Renderer. Raw HTML in the source is escaped.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(listClassTransformer{}, 500)),
		),
	)
	return &Renderer{md: md}
}

// Render converts source to an HTML fragment.
func (r *Renderer) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

type listClassTransformer struct{}

func (listClassTransformer) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.List:
			if node.IsOrdered() {
				node.SetAttributeString("class", []byte(ClassOrdered))
			} else {
				node.SetAttributeString("class", []byte(ClassUnordered))
			}
		case *ast.ListItem:
			node.SetAttributeString("class", []byte(ClassItem))
		}
		return ast.WalkContinue, nil
	})
}
