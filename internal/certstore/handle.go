// Package certstore provides reference-counted certificate handles,
// collections of them, the filter primitives used to narrow a collection, and
// named certificate stores backed by SQLite.
//
// A Certificate is either borrowed (obtained from a Collection by index; the
// collection owns it) or owned (obtained from Clone; the holder must Close
// it). Every owned handle is counted by the Tracker it was created under.
package certstore

import (
	"bytes"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sensiblebit/cmsresolve"
)

// Tracker counts outstanding owned certificate handles. A nil *Tracker is
// valid and counts nothing.
type Tracker struct {
	outstanding atomic.Int64
	acquired    atomic.Int64
}

// NewTracker returns a zeroed Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Outstanding returns the number of owned handles acquired and not yet closed.
func (t *Tracker) Outstanding() int {
	if t == nil {
		return 0
	}
	return int(t.outstanding.Load())
}

// Acquired returns the total number of owned handles ever acquired.
func (t *Tracker) Acquired() int {
	if t == nil {
		return 0
	}
	return int(t.acquired.Load())
}

func (t *Tracker) acquire() {
	if t == nil {
		return
	}
	t.acquired.Add(1)
	t.outstanding.Add(1)
}

func (t *Tracker) release() {
	if t == nil {
		return
	}
	if t.outstanding.Add(-1) < 0 {
		panic("certstore: tracker released more handles than it acquired")
	}
}

// certContext is the shared state behind every handle to one certificate.
// It stays valid while at least one owned handle references it.
type certContext struct {
	cert   *x509.Certificate
	serial []byte
	issuer string
	ski    []byte
	refs   atomic.Int32
}

func newCertContext(cert *x509.Certificate) *certContext {
	return &certContext{
		cert:   cert,
		serial: cmsresolve.SerialBytes(cert),
		issuer: cmsresolve.IssuerName(cert),
		ski:    cmsresolve.SubjectKeyID(cert),
	}
}

func (c *certContext) retain() {
	c.refs.Add(1)
}

func (c *certContext) releaseRef() {
	if c.refs.Add(-1) == 0 {
		c.cert = nil
	}
}

func (c *certContext) live() bool {
	return c.refs.Load() > 0
}

// Certificate is a handle to a certificate. The zero value is not usable.
type Certificate struct {
	ctx     *certContext
	tracker *Tracker
	owned   bool
	closed  atomic.Bool
	owner   *Certificate // set on borrowed handles
}

// newOwned creates an owned handle onto ctx, taking a reference.
func newOwned(ctx *certContext, tracker *Tracker) *Certificate {
	ctx.retain()
	tracker.acquire()
	return &Certificate{ctx: ctx, tracker: tracker, owned: true}
}

// NewCertificate wraps cert in a fresh context and returns an owned handle.
func NewCertificate(cert *x509.Certificate, tracker *Tracker) *Certificate {
	return newOwned(newCertContext(cert), tracker)
}

// borrow returns a borrowed view of an owned handle. The view is valid for
// as long as the owner is.
func (c *Certificate) borrow() *Certificate {
	return &Certificate{ctx: c.ctx, tracker: c.tracker, owner: c}
}

// context returns the live context or panics: touching a released handle is
// a use-after-free.
func (c *Certificate) context() *certContext {
	if !c.Valid() {
		panic("certstore: use of released certificate handle")
	}
	return c.ctx
}

// Owned reports whether the handle must be closed by its holder.
func (c *Certificate) Owned() bool {
	return c.owned
}

// Valid reports whether the handle can still be used.
func (c *Certificate) Valid() bool {
	if c.owner != nil {
		return c.owner.Valid()
	}
	return !c.closed.Load() && c.ctx.live()
}

// X509 returns the parsed certificate.
func (c *Certificate) X509() *x509.Certificate {
	return c.context().cert
}

// SerialNumber returns a copy of the serial number as an unsigned big-endian
// magnitude.
func (c *Certificate) SerialNumber() []byte {
	return bytes.Clone(c.context().serial)
}

// Issuer returns the RFC 4514 rendering of the issuer name.
func (c *Certificate) Issuer() string {
	return c.context().issuer
}

// SubjectKeyIdentifier returns the lowercase hex subject key identifier.
func (c *Certificate) SubjectKeyIdentifier() string {
	return hex.EncodeToString(c.context().ski)
}

// NotAfter returns the expiry time.
func (c *Certificate) NotAfter() time.Time {
	return c.context().cert.NotAfter
}

// Clone returns a new owned handle onto the same certificate. The clone
// stays valid after the source handle or its collection is closed.
func (c *Certificate) Clone() *Certificate {
	return newOwned(c.context(), c.tracker)
}

// Close releases an owned handle. Closing a borrowed handle is a no-op, and
// closing an owned handle twice is harmless.
func (c *Certificate) Close() error {
	if !c.owned {
		return nil
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.ctx.releaseRef()
	c.tracker.release()
	return nil
}

// String identifies the certificate for logs.
func (c *Certificate) String() string {
	if !c.Valid() {
		return "<released certificate>"
	}
	return fmt.Sprintf("serial=%s issuer=%q", hex.EncodeToString(c.ctx.serial), c.ctx.issuer)
}
