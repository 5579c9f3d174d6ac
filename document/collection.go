package document

import (
	"sync"

	"go.lsp.dev/uri"
)

// Collection owns every document currently open on behalf of a client. It
// assigns the monotonic global version that idle diagnostics callbacks use
// to discover what changed since they last ran, per the didOpen/didChange
// notification handlers registered against it.
type Collection struct {
	mu            sync.Mutex
	documents     map[string]*Document
	globalVersion int64
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{documents: make(map[string]*Document)}
}

// GlobalVersion returns the most recently allocated version.
func (c *Collection) GlobalVersion() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globalVersion
}

// Find returns the document for uri, if open.
func (c *Collection) Find(u string) (*Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[u]
	return doc, ok
}

// MapChangedSince calls cb for every open document whose last_global_version
// exceeds version, in no particular order. It is the primitive idle
// diagnostics callbacks poll to find documents worth re-checking.
func (c *Collection) MapChangedSince(version int64, cb func(u string, doc *Document)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for u, doc := range c.documents {
		if doc.LastGlobalVersion() > version {
			cb(u, doc)
		}
	}
}

// Open handles a textDocument/didOpen notification: URIs are validated with
// go.lsp.dev/uri but stored under their original string form, since the
// rest of the document model treats URIs as plain map keys. A second open
// for an already-open URI is a no-op; it does not replace the existing
// document's content.
func (c *Collection) Open(rawURI, text string) error {
	if _, err := uri.Parse(rawURI); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.documents[rawURI]; ok {
		return nil
	}
	c.globalVersion++
	doc := New(text)
	doc.stamp(c.globalVersion)
	c.documents[rawURI] = doc
	return nil
}

// Close handles a textDocument/didClose notification. Closing a URI that
// isn't open is a silent no-op.
func (c *Collection) Close(rawURI string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.documents, rawURI)
}

// Save handles a textDocument/didSave notification. It is currently a
// no-op on document state: saving doesn't change content or bump versions.
func (c *Collection) Save(rawURI string) {}

// Change handles a textDocument/didChange notification, applying each
// change against the document in order and stamping a freshly allocated
// global version per accepted change. Changes against a URI that isn't
// open are silently ignored.
func (c *Collection) Change(rawURI string, changes []Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[rawURI]
	if !ok {
		return
	}
	for _, change := range changes {
		if doc.ApplyChange(change) {
			c.globalVersion++
			doc.stamp(c.globalVersion)
		}
	}
}
