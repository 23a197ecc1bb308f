// Package recipient resolves CMS signer and recipient identifiers to the
// certificates they name.
package recipient

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Identifier names a certificate the way a CMS SignerInfo or
// KeyTransRecipientInfo does. The set of implementations is closed:
// IssuerAndSerial and SubjectKeyIdentifier.
type Identifier interface {
	fmt.Stringer
	isIdentifier()
}

// IssuerAndSerial identifies a certificate by issuer distinguished name and
// serial number.
type IssuerAndSerial struct {
	// IssuerName is the RFC 4514 rendering of the issuer RDNSequence, as
	// produced by cmsresolve.DistinguishedName.
	IssuerName string
	// SerialNumber is the unsigned big-endian magnitude of the serial.
	SerialNumber []byte
}

func (IssuerAndSerial) isIdentifier() {}

// String renders the identifier for logs and output.
func (id IssuerAndSerial) String() string {
	return fmt.Sprintf("issuer=%q serial=%s", id.IssuerName, hex.EncodeToString(id.SerialNumber))
}

// SubjectKeyIdentifier identifies a certificate by subject key identifier.
type SubjectKeyIdentifier struct {
	// SKI is hex encoded; case and colon separators are ignored.
	SKI string
}

func (SubjectKeyIdentifier) isIdentifier() {}

// String renders the identifier for logs and output.
func (id SubjectKeyIdentifier) String() string {
	return "ski=" + strings.ToLower(id.SKI)
}

// NewSubjectKeyIdentifier builds an identifier from raw SKI bytes.
func NewSubjectKeyIdentifier(ski []byte) SubjectKeyIdentifier {
	return SubjectKeyIdentifier{SKI: hex.EncodeToString(ski)}
}
