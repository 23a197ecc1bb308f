package pkcs9

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/cryptobyte"
)

// NewDocumentName encodes name as a document name attribute.
func NewDocumentName(name string) (*DocumentName, error) {
	raw, err := encodeUTF16(name)
	if err != nil {
		return nil, fmt.Errorf("encoding document name: %w", err)
	}
	return &DocumentName{Generic: Generic{oid: OIDDocumentName, raw: raw}, Name: name}, nil
}

// NewDocumentDescription encodes desc as a document description attribute.
func NewDocumentDescription(desc string) (*DocumentDescription, error) {
	raw, err := encodeUTF16(desc)
	if err != nil {
		return nil, fmt.Errorf("encoding document description: %w", err)
	}
	return &DocumentDescription{Generic: Generic{oid: OIDDocumentDescription, raw: raw}, Description: desc}, nil
}

// NewSigningTime encodes t, truncated to whole seconds in UTC, as UTCTime
// for years 1950 through 2049 and GeneralizedTime otherwise (RFC 5652
// section 11.3).
func NewSigningTime(t time.Time) (*SigningTime, error) {
	t = t.UTC().Truncate(time.Second)
	b := cryptobyte.NewBuilder(nil)
	if y := t.Year(); y >= 1950 && y < 2050 {
		b.AddASN1UTCTime(t)
	} else {
		b.AddASN1GeneralizedTime(t)
	}
	raw, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding signing time: %w", err)
	}
	return &SigningTime{Generic: Generic{oid: OIDSigningTime, raw: raw}, Time: t}, nil
}

// NewContentType encodes oid as a content-type attribute.
func NewContentType(oid asn1.ObjectIdentifier) (*ContentType, error) {
	if len(oid) < 2 {
		return nil, errors.New("encoding content type: object identifier needs at least two arcs")
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1ObjectIdentifier(oid)
	raw, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding content type: %w", err)
	}
	return &ContentType{Generic: Generic{oid: OIDContentType, raw: raw}, ContentType: slices.Clone(oid)}, nil
}

// NewMessageDigest encodes digest as a message-digest attribute.
func NewMessageDigest(digest []byte) (*MessageDigest, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1OctetString(digest)
	raw, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding message digest: %w", err)
	}
	return &MessageDigest{Generic: Generic{oid: OIDMessageDigest, raw: raw}, Digest: bytes.Clone(digest)}, nil
}

// encodeUTF16 wraps s, NUL-terminated and UTF-16LE encoded, in an OCTET STRING.
func encodeUTF16(s string) ([]byte, error) {
	text, err := utf16LE.NewEncoder().Bytes([]byte(s + "\x00"))
	if err != nil {
		return nil, err
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1OctetString(text)
	return b.Bytes()
}
