package parser

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed page. It must be released by whoever owns it; after
// Release every query returns an empty selection.
type Document struct {
	mu       sync.RWMutex
	doc      *goquery.Document
	root     *goquery.Selection
	released bool
}

// Parse builds a Document from raw markup. When scope selectors are given only
// the matching subtrees are queryable.
func Parse(raw []byte, scope ...string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	root := doc.Selection
	if len(scope) > 0 {
		root = doc.Find(strings.Join(scope, ", "))
	}

	return &Document{doc: doc, root: root}, nil
}

// Selection returns the document root, or an empty selection once released.
func (d *Document) Selection() *goquery.Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.released {
		return new(goquery.Selection)
	}
	return d.root
}

func (d *Document) Find(selector string) *goquery.Selection {
	return d.Selection().Find(selector)
}

func (d *Document) Exists(selector string) bool {
	return d.Find(selector).Length() > 0
}

// Text returns the trimmed text of the first match.
func (d *Document) Text(selector string) string {
	return strings.TrimSpace(d.Find(selector).First().Text())
}

// Attr returns the trimmed attribute of the first match.
func (d *Document) Attr(selector, attr string) (string, bool) {
	v, ok := d.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v), ok
}

// Each calls fn for every match in document order.
func (d *Document) Each(selector string, fn func(i int, s *goquery.Selection)) {
	d.Find(selector).Each(fn)
}

// Release drops the parsed tree. It is safe to call more than once.
func (d *Document) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.released = true
	d.doc = nil
	d.root = nil
}

func (d *Document) Released() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.released
}

// FirstText returns the trimmed text of the first element of s matched by
// selector, or the text of s itself when selector is empty.
func FirstText(s *goquery.Selection, selector string) string {
	if selector != "" {
		s = s.Find(selector)
	}
	return strings.TrimSpace(s.First().Text())
}

// FirstAttr mirrors FirstText for attributes.
func FirstAttr(s *goquery.Selection, selector, attr string) string {
	if selector != "" {
		s = s.Find(selector)
	}
	v, _ := s.First().Attr(attr)
	return strings.TrimSpace(v)
}
