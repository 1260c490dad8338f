// Package render materializes reconcile instructions as HTML or as
// colored terminal text.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/japaniel/langparser/pkg/reconcile"
)

const (
	TokenClass    = "lang-parser-token"
	AttrLanguage  = "lang-parser-token-lang"
	AttrStatus    = "lang-parser-memory-status"
	AttrReading   = "lang-parser-reading"
	AttrLookupURL = "lang-parser-lookup"
)

// pageStyle shades words by familiarity; mastered words stay plain.
const pageStyle = `
.lang-parser-token { cursor: pointer; }
.lang-parser-token[lang-parser-memory-status="0"] { background: #ffd6d6; }
.lang-parser-token[lang-parser-memory-status="1"] { background: #ffe8c2; }
.lang-parser-token[lang-parser-memory-status="2"] { background: #fff6b3; }
.lang-parser-token[lang-parser-memory-status="3"] { background: #e0f5d0; }
`

// HTML is a Sink that keeps one <span> group per handle.
type HTML struct {
	mu     sync.Mutex
	groups map[reconcile.Handle]*html.Node
}

func NewHTML() *HTML {
	return &HTML{groups: make(map[reconcile.Handle]*html.Node)}
}

// Render replaces the group of h.
func (s *HTML) Render(h reconcile.Handle, instrs []reconcile.Instruction) error {
	group := element(atom.Span, html.Attribute{Key: "data-handle", Val: string(h)})
	for _, in := range instrs {
		group.AppendChild(instructionNode(in))
	}
	s.mu.Lock()
	s.groups[h] = group
	s.mu.Unlock()
	return nil
}

func instructionNode(in reconcile.Instruction) *html.Node {
	text := &html.Node{Type: html.TextNode, Data: in.Text}
	if in.Kind == reconcile.Plain {
		return text
	}
	attrs := []html.Attribute{
		{Key: "class", Val: TokenClass},
		{Key: AttrLanguage, Val: string(in.Variant)},
		{Key: AttrStatus, Val: strconv.Itoa(in.Familiarity)},
	}
	if in.Pronunciation != "" {
		attrs = append(attrs, html.Attribute{Key: AttrReading, Val: in.Pronunciation})
	}
	if in.LookupURL != "" {
		attrs = append(attrs, html.Attribute{Key: AttrLookupURL, Val: in.LookupURL})
	}
	title := in.Pronunciation
	if in.Notes != "" {
		if title != "" {
			title += " · "
		}
		title += in.Notes
	}
	if title != "" {
		attrs = append(attrs, html.Attribute{Key: "title", Val: title})
	}
	span := element(atom.Span, attrs...)
	span.AppendChild(text)
	return span
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

// Fragment returns the rendered markup of h.
func (s *HTML) Fragment(h reconcile.Handle) (string, bool) {
	s.mu.Lock()
	group, ok := s.groups[h]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	var b strings.Builder
	if err := html.Render(&b, group); err != nil {
		return "", false
	}
	return b.String(), true
}

// WritePage writes a standalone page with one paragraph per region, in the
// given order. Regions that were never rendered are written as plain text.
func (s *HTML) WritePage(w io.Writer, title string, regions []reconcile.Region) error {
	head := element(atom.Head)
	meta := element(atom.Meta, html.Attribute{Key: "charset", Val: "utf-8"})
	titleEl := element(atom.Title)
	titleEl.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	style := element(atom.Style)
	style.AppendChild(&html.Node{Type: html.TextNode, Data: pageStyle})
	head.AppendChild(meta)
	head.AppendChild(titleEl)
	head.AppendChild(style)

	body := element(atom.Body)
	s.mu.Lock()
	for _, r := range regions {
		p := element(atom.P)
		if group, ok := s.groups[r.Handle]; ok {
			p.AppendChild(cloneTree(group))
		} else {
			p.AppendChild(&html.Node{Type: html.TextNode, Data: r.Text})
		}
		body.AppendChild(p)
	}
	s.mu.Unlock()

	root := element(atom.Html)
	root.AppendChild(head)
	root.AppendChild(body)
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(root)

	if err := html.Render(w, doc); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

// cloneTree copies n so a group can be attached to more than one parent.
func cloneTree(n *html.Node) *html.Node {
	c := &html.Node{Type: n.Type, DataAtom: n.DataAtom, Data: n.Data, Namespace: n.Namespace}
	c.Attr = append([]html.Attribute(nil), n.Attr...)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneTree(child))
	}
	return c
}
