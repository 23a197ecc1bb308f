package certstore

import (
	"crypto/x509"
	"errors"
)

// ErrClosed is returned when a closed collection is used.
var ErrClosed = errors.New("certstore: collection is closed")

// Collection is an ordered set of owned certificate handles. Duplicates are
// allowed. Closing the collection releases every member; handles previously
// cloned out of it stay valid.
type Collection struct {
	tracker *Tracker
	certs   []*Certificate
	closed  bool
}

// NewCollection returns an empty collection whose handles are counted by tracker.
func NewCollection(tracker *Tracker) *Collection {
	return &Collection{tracker: tracker}
}

// CollectionOf returns a collection holding the given certificates in order.
func CollectionOf(tracker *Tracker, certs ...*x509.Certificate) *Collection {
	c := NewCollection(tracker)
	for _, cert := range certs {
		c.certs = append(c.certs, NewCertificate(cert, tracker))
	}
	return c
}

// Tracker returns the tracker counting this collection's handles.
func (c *Collection) Tracker() *Tracker {
	return c.tracker
}

// Add appends a new certificate to the collection.
func (c *Collection) Add(cert *x509.Certificate) error {
	if c.closed {
		return ErrClosed
	}
	if cert == nil {
		return errors.New("certificate is nil")
	}
	c.certs = append(c.certs, NewCertificate(cert, c.tracker))
	return nil
}

// AddHandle appends a clone of h. The caller keeps ownership of h.
func (c *Collection) AddHandle(h *Certificate) error {
	if c.closed {
		return ErrClosed
	}
	c.certs = append(c.certs, newOwned(h.context(), c.tracker))
	return nil
}

// Len returns the number of certificates. A closed collection is empty.
func (c *Collection) Len() int {
	if c == nil || c.closed {
		return 0
	}
	return len(c.certs)
}

// At returns a borrowed handle to the i-th certificate. It panics if i is out
// of range or the collection is closed.
func (c *Collection) At(i int) *Certificate {
	if c.closed {
		panic(ErrClosed)
	}
	return c.certs[i].borrow()
}

// Certificates returns borrowed handles to every member, in order.
func (c *Collection) Certificates() []*Certificate {
	out := make([]*Certificate, 0, c.Len())
	for i := range c.Len() {
		out = append(out, c.At(i))
	}
	return out
}

// Close releases every member. Closing twice is harmless; a nil collection
// is treated as already closed.
func (c *Collection) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	// Release in reverse order of acquisition.
	for i := len(c.certs) - 1; i >= 0; i-- {
		_ = c.certs[i].Close()
	}
	c.certs = nil
	return nil
}
