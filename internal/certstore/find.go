package certstore

import (
	"bytes"
	"fmt"

	"github.com/sensiblebit/cmsresolve"
)

// FindBySerialNumber returns a new collection holding clones of every member
// of src whose serial number equals serial byte for byte. Serials are
// compared as unsigned big-endian magnitudes. The caller must close the
// result.
func FindBySerialNumber(src *Collection, serial []byte) (*Collection, error) {
	return find(src, func(ctx *certContext) bool {
		return bytes.Equal(ctx.serial, serial)
	})
}

// FindByIssuerName returns a new collection holding clones of every member
// of src whose issuer, rendered as an RFC 4514 string, equals issuer
// exactly. The caller must close the result.
func FindByIssuerName(src *Collection, issuer string) (*Collection, error) {
	return find(src, func(ctx *certContext) bool {
		return ctx.issuer == issuer
	})
}

// FindBySubjectKeyIdentifier returns a new collection holding clones of
// every member of src whose subject key identifier equals ski. ski is hex,
// case-insensitive, and may separate octets with colons. The caller must
// close the result.
func FindBySubjectKeyIdentifier(src *Collection, ski string) (*Collection, error) {
	want, err := cmsresolve.ParseHex(ski)
	if err != nil {
		return nil, fmt.Errorf("parsing subject key identifier: %w", err)
	}
	return find(src, func(ctx *certContext) bool {
		return len(ctx.ski) > 0 && bytes.Equal(ctx.ski, want)
	})
}

// find clones the members of src that satisfy match into a new collection
// sharing src's tracker. Source order is preserved.
func find(src *Collection, match func(*certContext) bool) (*Collection, error) {
	if src == nil || src.closed {
		return nil, ErrClosed
	}
	out := NewCollection(src.tracker)
	for _, h := range src.certs {
		ctx := h.context()
		if match(ctx) {
			out.certs = append(out.certs, newOwned(ctx, src.tracker))
		}
	}
	return out, nil
}
