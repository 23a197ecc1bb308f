// Package pkcs9 turns generic CMS attributes into typed values for the
// well-known PKCS#9 and Authenticode document attributes.
package pkcs9

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Well-known attribute object identifiers.
var (
	OIDContentType         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OIDMessageDigest       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	OIDSigningTime         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
	OIDDocumentName        = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 88, 2, 1}
	OIDDocumentDescription = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 88, 2, 2}
)

// Kind enumerates the attribute representations Specialize can produce.
type Kind int

const (
	KindGeneric Kind = iota
	KindDocumentName
	KindDocumentDescription
	KindSigningTime
	KindContentType
	KindMessageDigest
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "Generic"
	case KindDocumentName:
		return "DocumentName"
	case KindDocumentDescription:
		return "DocumentDescription"
	case KindSigningTime:
		return "SigningTime"
	case KindContentType:
		return "ContentType"
	case KindMessageDigest:
		return "MessageDigest"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrMalformed is wrapped by every DecodeError.
var ErrMalformed = errors.New("malformed attribute value")

// DecodeError reports a recognized attribute whose value could not be parsed.
type DecodeError struct {
	OID    asn1.ObjectIdentifier
	Kind   Kind
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s attribute (%s): %s", e.Kind, e.OID, e.Reason)
}

// Unwrap makes errors.Is(err, ErrMalformed) hold.
func (e *DecodeError) Unwrap() error {
	return ErrMalformed
}

// Attribute is a single attribute value. The concrete type is one of
// *Generic, *DocumentName, *DocumentDescription, *SigningTime, *ContentType,
// or *MessageDigest.
type Attribute interface {
	// OID returns the attribute type.
	OID() asn1.ObjectIdentifier
	// RawValue returns the DER encoding of the value.
	RawValue() []byte
	// Kind returns which representation this is.
	Kind() Kind
}

// Generic is an attribute with no specialized representation. It is also
// embedded by the specialized types to carry the OID and encoding.
type Generic struct {
	oid asn1.ObjectIdentifier
	raw []byte
}

// NewGeneric returns a Generic attribute holding copies of oid and encoded.
func NewGeneric(oid asn1.ObjectIdentifier, encoded []byte) *Generic {
	return &Generic{oid: slices.Clone(oid), raw: bytes.Clone(encoded)}
}

func (g *Generic) OID() asn1.ObjectIdentifier { return slices.Clone(g.oid) }
func (g *Generic) RawValue() []byte           { return bytes.Clone(g.raw) }
func (g *Generic) Kind() Kind                 { return KindGeneric }

// DocumentName is the Authenticode document name attribute.
type DocumentName struct {
	Generic
	Name string
}

func (*DocumentName) Kind() Kind { return KindDocumentName }

// DocumentDescription is the Authenticode document description attribute.
type DocumentDescription struct {
	Generic
	Description string
}

func (*DocumentDescription) Kind() Kind { return KindDocumentDescription }

// SigningTime is the PKCS#9 signing-time attribute.
type SigningTime struct {
	Generic
	Time time.Time
}

func (*SigningTime) Kind() Kind { return KindSigningTime }

// ContentType is the PKCS#9 content-type attribute.
type ContentType struct {
	Generic
	ContentType asn1.ObjectIdentifier
}

func (*ContentType) Kind() Kind { return KindContentType }

// MessageDigest is the PKCS#9 message-digest attribute.
type MessageDigest struct {
	Generic
	Digest []byte
}

func (*MessageDigest) Kind() Kind { return KindMessageDigest }
