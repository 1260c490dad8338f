// Package source turns web pages and plain text into the host regions the
// reconciler annotates.
package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/japaniel/langparser/pkg/reconcile"
)

// Document is the text of one source split into regions.
type Document struct {
	Kind     string
	Title    string
	Byline   string
	SiteName string
	URL      string
	Regions  []reconcile.Region
}

// Text joins the document's regions with newlines.
func (d Document) Text() string {
	parts := make([]string, len(d.Regions))
	for i, r := range d.Regions {
		parts[i] = r.Text
	}
	return strings.Join(parts, "\n")
}

const (
	KindArticle = "website_article"
	KindPage    = "website_page"
	KindText    = "text"
)

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses
// (<rp>...</rp>). Pages annotating Han with pinyin or jyutping in ruby would
// otherwise yield the reading interleaved with the characters.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}

// FromText splits plain text into one region per non-blank line. Handles
// are "L<line number>".
func FromText(r io.Reader) (Document, error) {
	doc := Document{Kind: KindText}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Regions = append(doc.Regions, reconcile.Region{
			Handle: reconcile.Handle("L" + strconv.Itoa(line)),
			Text:   text,
		})
	}
	if err := sc.Err(); err != nil {
		return Document{}, fmt.Errorf("read text: %w", err)
	}
	return doc, nil
}

// FromArticle extracts the main article of an HTML page with readability.
func FromArticle(content []byte, pageURL string) (Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return Document{}, fmt.Errorf("parse url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(SanitizeRuby(content)), u)
	if err != nil {
		return Document{}, fmt.Errorf("extract article: %w", err)
	}
	doc, err := FromText(strings.NewReader(article.TextContent))
	if err != nil {
		return Document{}, err
	}
	doc.Kind = KindArticle
	doc.Title = strings.TrimSpace(article.Title)
	doc.Byline = article.Byline
	doc.SiteName = article.SiteName
	doc.URL = pageURL
	return doc, nil
}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Textarea: true,
}

// FromHTML returns every visible text node of an HTML page as a region.
// A node's handle is its child-index path from the document root, so the
// same markup always yields the same handles.
func FromHTML(content []byte, pageURL string) (Document, error) {
	root, err := html.Parse(bytes.NewReader(SanitizeRuby(content)))
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}
	doc := Document{Kind: KindPage, URL: pageURL}
	var walk func(n *html.Node, path string)
	walk = func(n *html.Node, path string) {
		switch n.Type {
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				doc.Regions = append(doc.Regions, reconcile.Region{Handle: reconcile.Handle(path), Text: n.Data})
			}
			return
		case html.ElementNode:
			if n.DataAtom == atom.Title {
				if doc.Title == "" && n.FirstChild != nil {
					doc.Title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
			if skipped[n.DataAtom] {
				return
			}
		}
		i := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, path+"/"+strconv.Itoa(i))
			i++
		}
	}
	walk(root, "")
	return doc, nil
}
