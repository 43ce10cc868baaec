package parser

import (
	"sync"
)

// Tracker owns the documents parsed during one scrape run or one crawl step.
// ReleaseAll is meant to be deferred by the owner right after creation.
type Tracker struct {
	mu       sync.Mutex
	docs     []*Document
	acquired int
	released int
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Parse parses raw and registers the resulting document.
func (t *Tracker) Parse(raw []byte, scope ...string) (*Document, error) {
	doc, err := Parse(raw, scope...)
	if err != nil {
		return nil, err
	}
	return t.Register(doc), nil
}

func (t *Tracker) Register(doc *Document) *Document {
	if doc == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.docs = append(t.docs, doc)
	t.acquired++
	return doc
}

// ReleaseAll releases every registered document and returns how many were
// released by this call.
func (t *Tracker) ReleaseAll() int {
	t.mu.Lock()
	docs := t.docs
	t.docs = nil
	t.mu.Unlock()

	for _, doc := range docs {
		doc.Release()
	}

	t.mu.Lock()
	t.released += len(docs)
	t.mu.Unlock()

	return len(docs)
}

func (t *Tracker) Acquired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquired
}

func (t *Tracker) Released() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// Open returns the number of registered documents not yet released.
func (t *Tracker) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.docs)
}
