// Package cms extracts signer and recipient identifiers, signed attributes,
// and embedded certificates from DER- or BER-encoded CMS SignedData and
// EnvelopedData messages (RFC 5652). Signatures are not verified and content
// is not decrypted.
package cms

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/sensiblebit/cmsresolve"
	"github.com/sensiblebit/cmsresolve/internal/pkcs9"
	"github.com/sensiblebit/cmsresolve/internal/recipient"
)

// Content type OIDs.
var (
	OIDData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	OIDSignedData    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDEnvelopedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3}
)

// ErrUnsupportedContentType is returned for ContentInfo types other than
// SignedData and EnvelopedData.
var ErrUnsupportedContentType = errors.New("cms: unsupported content type")

// contentInfo is the top-level CMS wrapper (RFC 5652 section 3).
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// signedData is RFC 5652 section 5.1. Certificates and CRLs are kept raw.
type signedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo encapsulatedContentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      []signerInfo  `asn1:"set"`
}

type encapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// signerInfo is RFC 5652 section 5.3. SID is a CHOICE between
// IssuerAndSerialNumber (SEQUENCE) and [0] IMPLICIT SubjectKeyIdentifier.
type signerInfo struct {
	Version            int
	SID                asn1.RawValue
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

type issuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

type attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

// envelopedData is RFC 5652 section 6.1. RecipientInfos is a SET of a CHOICE,
// so each element is kept raw and dispatched on its tag.
type envelopedData struct {
	Version              int
	OriginatorInfo       asn1.RawValue   `asn1:"optional,tag:0"`
	RecipientInfos       []asn1.RawValue `asn1:"set"`
	EncryptedContentInfo asn1.RawValue
	UnprotectedAttrs     asn1.RawValue `asn1:"optional,tag:1"`
}

type keyTransRecipientInfo struct {
	Version                int
	RID                    asn1.RawValue
	KeyEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedKey           []byte
}

// Signer is one SignerInfo.
type Signer struct {
	Version     int
	ID          recipient.Identifier
	DigestAlg   asn1.ObjectIdentifier
	SignedAttrs []pkcs9.Attribute
}

// Recipient is one KeyTransRecipientInfo.
type Recipient struct {
	Version int
	ID      recipient.Identifier
	KeyAlg  asn1.ObjectIdentifier
}

// Message is a parsed SignedData or EnvelopedData.
type Message struct {
	ContentType  asn1.ObjectIdentifier
	Signers      []Signer
	Recipients   []Recipient
	Certificates []*x509.Certificate
}

// Identifiers returns the signer identifiers followed by the recipient
// identifiers.
func (m *Message) Identifiers() []recipient.Identifier {
	ids := make([]recipient.Identifier, 0, len(m.Signers)+len(m.Recipients))
	for _, s := range m.Signers {
		ids = append(ids, s.ID)
	}
	for _, r := range m.Recipients {
		ids = append(ids, r.ID)
	}
	return ids
}

// Parse parses a ContentInfo holding SignedData or EnvelopedData. BER
// indefinite-length encodings are normalized to DER first.
func Parse(data []byte) (*Message, error) {
	der, err := berToDER(data)
	if err != nil {
		return nil, fmt.Errorf("parsing ContentInfo: %w", err)
	}
	var ci contentInfo
	rest, err := asn1.Unmarshal(der, &ci)
	if err != nil {
		return nil, fmt.Errorf("parsing ContentInfo: %w", err)
	}
	if len(rest) > 0 {
		return nil, errors.New("trailing data after ContentInfo")
	}

	switch {
	case ci.ContentType.Equal(OIDSignedData):
		return parseSignedData(ci.Content.Bytes)
	case ci.ContentType.Equal(OIDEnvelopedData):
		return parseEnvelopedData(ci.Content.Bytes)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, ci.ContentType)
	}
}

func parseSignedData(der []byte) (*Message, error) {
	var sd signedData
	if _, err := asn1.Unmarshal(der, &sd); err != nil {
		return nil, fmt.Errorf("parsing SignedData: %w", err)
	}

	msg := &Message{ContentType: OIDSignedData}
	if len(sd.Certificates.Bytes) > 0 {
		certs, err := x509.ParseCertificates(sd.Certificates.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing embedded certificates: %w", err)
		}
		msg.Certificates = certs
	}

	for i, si := range sd.SignerInfos {
		id, err := parseIdentifier(si.SID)
		if err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}
		attrs, err := parseAttributes(si.SignedAttrs.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}
		msg.Signers = append(msg.Signers, Signer{
			Version:     si.Version,
			ID:          id,
			DigestAlg:   si.DigestAlgorithm.Algorithm,
			SignedAttrs: attrs,
		})
	}
	return msg, nil
}

func parseEnvelopedData(der []byte) (*Message, error) {
	var ed envelopedData
	if _, err := asn1.Unmarshal(der, &ed); err != nil {
		return nil, fmt.Errorf("parsing EnvelopedData: %w", err)
	}

	msg := &Message{ContentType: OIDEnvelopedData}
	for i, ri := range ed.RecipientInfos {
		if ri.Class != asn1.ClassUniversal || ri.Tag != asn1.TagSequence {
			slog.Debug("skipping non key-transport recipient", "index", i, "tag", ri.Tag)
			continue
		}
		var ktri keyTransRecipientInfo
		if _, err := asn1.Unmarshal(ri.FullBytes, &ktri); err != nil {
			return nil, fmt.Errorf("recipient %d: parsing KeyTransRecipientInfo: %w", i, err)
		}
		id, err := parseIdentifier(ktri.RID)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}
		msg.Recipients = append(msg.Recipients, Recipient{
			Version: ktri.Version,
			ID:      id,
			KeyAlg:  ktri.KeyEncryptionAlgorithm.Algorithm,
		})
	}
	return msg, nil
}

// parseIdentifier decodes a SignerIdentifier or RecipientIdentifier CHOICE.
func parseIdentifier(raw asn1.RawValue) (recipient.Identifier, error) {
	switch {
	case raw.Class == asn1.ClassUniversal && raw.Tag == asn1.TagSequence:
		var ias issuerAndSerialNumber
		if _, err := asn1.Unmarshal(raw.FullBytes, &ias); err != nil {
			return nil, fmt.Errorf("parsing IssuerAndSerialNumber: %w", err)
		}
		if ias.SerialNumber == nil || ias.SerialNumber.Sign() < 0 {
			return nil, errors.New("invalid serial number in IssuerAndSerialNumber")
		}
		issuer, err := cmsresolve.DistinguishedName(ias.Issuer.FullBytes)
		if err != nil {
			return nil, err
		}
		return recipient.IssuerAndSerial{IssuerName: issuer, SerialNumber: ias.SerialNumber.Bytes()}, nil

	case raw.Class == asn1.ClassContextSpecific && raw.Tag == 0 && !raw.IsCompound:
		if len(raw.Bytes) == 0 {
			return nil, errors.New("empty SubjectKeyIdentifier")
		}
		return recipient.NewSubjectKeyIdentifier(raw.Bytes), nil

	default:
		return nil, fmt.Errorf("unsupported identifier choice (class %d, tag %d)", raw.Class, raw.Tag)
	}
}

// parseAttributes decodes the content octets of a SET OF Attribute and
// specializes every value.
func parseAttributes(der []byte) ([]pkcs9.Attribute, error) {
	var attrs []pkcs9.Attribute
	for rest := der; len(rest) > 0; {
		var a attribute
		var err error
		rest, err = asn1.Unmarshal(rest, &a)
		if err != nil {
			return nil, fmt.Errorf("parsing attribute: %w", err)
		}
		for values := a.Values.Bytes; len(values) > 0; {
			var v asn1.RawValue
			values, err = asn1.Unmarshal(values, &v)
			if err != nil {
				return nil, fmt.Errorf("parsing value of attribute %s: %w", a.Type, err)
			}
			attr, err := pkcs9.Specialize(a.Type, v.FullBytes)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, attr)
		}
	}
	return attrs, nil
}
