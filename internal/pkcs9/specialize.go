package pkcs9

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"time"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/text/encoding/unicode"
)

// specializer decodes the value of one well-known attribute type.
type specializer struct {
	kind   Kind
	decode func(g Generic) (Attribute, error)
}

// specializers maps dotted OID strings to their decoders.
var specializers = map[string]specializer{
	OIDDocumentName.String():        {KindDocumentName, decodeDocumentName},
	OIDDocumentDescription.String(): {KindDocumentDescription, decodeDocumentDescription},
	OIDSigningTime.String():         {KindSigningTime, decodeSigningTime},
	OIDContentType.String():         {KindContentType, decodeContentType},
	OIDMessageDigest.String():       {KindMessageDigest, decodeMessageDigest},
}

// KindOf returns the representation Specialize produces for oid.
func KindOf(oid asn1.ObjectIdentifier) Kind {
	if s, ok := specializers[oid.String()]; ok {
		return s.kind
	}
	return KindGeneric
}

// Specialize returns the typed representation of an attribute value. Values
// of unrecognized types come back as *Generic with oid and encoded copied
// unchanged. A recognized type whose value does not parse yields a
// *DecodeError; it is never downgraded to *Generic.
func Specialize(oid asn1.ObjectIdentifier, encoded []byte) (Attribute, error) {
	g := NewGeneric(oid, encoded)
	s, ok := specializers[oid.String()]
	if !ok {
		return g, nil
	}
	attr, err := s.decode(*g)
	if err != nil {
		return nil, &DecodeError{OID: g.OID(), Kind: s.kind, Reason: err.Error()}
	}
	return attr, nil
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// readOctetString reads a single OCTET STRING spanning all of raw.
func readOctetString(raw []byte) ([]byte, error) {
	s := cryptobyte.String(raw)
	var octets cryptobyte.String
	if !s.ReadASN1(&octets, casn1.OCTET_STRING) {
		return nil, errors.New("expected OCTET STRING")
	}
	if !s.Empty() {
		return nil, errors.New("trailing data after OCTET STRING")
	}
	return []byte(octets), nil
}

// decodeUTF16 decodes NUL-terminated UTF-16LE text. A missing terminator is
// tolerated; an odd byte count is not.
func decodeUTF16(raw []byte) (string, error) {
	octets, err := readOctetString(raw)
	if err != nil {
		return "", err
	}
	if len(octets)%2 != 0 {
		return "", errors.New("odd-length UTF-16 string")
	}
	if n := len(octets); n >= 2 && octets[n-1] == 0 && octets[n-2] == 0 {
		octets = octets[:n-2]
	}
	text, err := utf16LE.NewDecoder().Bytes(octets)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func decodeDocumentName(g Generic) (Attribute, error) {
	name, err := decodeUTF16(g.raw)
	if err != nil {
		return nil, err
	}
	return &DocumentName{Generic: g, Name: name}, nil
}

func decodeDocumentDescription(g Generic) (Attribute, error) {
	desc, err := decodeUTF16(g.raw)
	if err != nil {
		return nil, err
	}
	return &DocumentDescription{Generic: g, Description: desc}, nil
}

func decodeSigningTime(g Generic) (Attribute, error) {
	s := cryptobyte.String(g.raw)
	var t time.Time
	switch {
	case s.PeekASN1Tag(casn1.UTCTime):
		if !s.ReadASN1UTCTime(&t) {
			return nil, errors.New("invalid UTCTime")
		}
	case s.PeekASN1Tag(casn1.GeneralizedTime):
		if !s.ReadASN1GeneralizedTime(&t) {
			return nil, errors.New("invalid GeneralizedTime")
		}
	default:
		return nil, errors.New("expected UTCTime or GeneralizedTime")
	}
	if !s.Empty() {
		return nil, errors.New("trailing data after time")
	}
	return &SigningTime{Generic: g, Time: t.UTC()}, nil
}

func decodeContentType(g Generic) (Attribute, error) {
	s := cryptobyte.String(g.raw)
	var oid asn1.ObjectIdentifier
	if !s.ReadASN1ObjectIdentifier(&oid) {
		return nil, errors.New("expected OBJECT IDENTIFIER")
	}
	if !s.Empty() {
		return nil, errors.New("trailing data after OBJECT IDENTIFIER")
	}
	return &ContentType{Generic: g, ContentType: oid}, nil
}

func decodeMessageDigest(g Generic) (Attribute, error) {
	digest, err := readOctetString(g.raw)
	if err != nil {
		return nil, err
	}
	return &MessageDigest{Generic: g, Digest: bytes.Clone(digest)}, nil
}
