// Package extract wraps goquery with lookups that are total: a missing
// element yields an empty Node whose accessors return zero values, so
// scrape code can chain fallbacks without nil checks at every step.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Format int

const (
	HTML Format = iota
	// XML documents go through the same lenient parser. Tag names come
	// out lowercased, so selectors must be written lowercase.
	XML
)

type Document struct {
	doc *goquery.Document
}

type Node struct {
	sel *goquery.Selection
}

func Parse(body []byte, format Format) (*Document, error) {
	_ = format
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc}, nil
}

// At returns the first element matching the selector. The returned
// Node is usable even when nothing matched.
func (d *Document) At(selector string) Node {
	return Node{sel: d.doc.Find(selector).First()}
}

func (d *Document) Search(selector string) []Node {
	var nodes []Node
	d.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		nodes = append(nodes, Node{sel: sel})
	})
	return nodes
}

func (n Node) Exists() bool {
	return n.sel != nil && n.sel.Length() > 0
}

func (n Node) At(selector string) Node {
	if !n.Exists() {
		return Node{}
	}
	return Node{sel: n.sel.Find(selector).First()}
}

func (n Node) Search(selector string) []Node {
	if !n.Exists() {
		return nil
	}
	var nodes []Node
	n.sel.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		nodes = append(nodes, Node{sel: sel})
	})
	return nodes
}

// Text returns the node's text content with surrounding whitespace
// trimmed, or "" when the node does not exist.
func (n Node) Text() string {
	if !n.Exists() {
		return ""
	}
	return strings.TrimSpace(n.sel.Text())
}

func (n Node) Attr(name string) string {
	if !n.Exists() {
		return ""
	}
	val, _ := n.sel.Attr(name)
	return val
}

func (n Node) HasAttr(name string) bool {
	if !n.Exists() {
		return false
	}
	_, ok := n.sel.Attr(name)
	return ok
}

func (n Node) Parent() Node {
	if !n.Exists() {
		return Node{}
	}
	return Node{sel: n.sel.Parent()}
}
