// Package cmsresolve provides the certificate parsing and identification
// helpers shared by the CMS identifier resolver: multi-format certificate
// decoding, distinguished-name rendering, and subject key identifier
// computation.
package cmsresolve

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ParsePEMCertificates parses all certificates from a PEM bundle. Blocks of
// other types are skipped.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}
	return certs, nil
}

// ParseCertificatesAny attempts to parse certificates from raw bytes, trying
// DER first (one or more concatenated certificates), then PEM, then a
// certs-only PKCS#7 bundle.
func ParseCertificatesAny(data []byte) ([]*x509.Certificate, error) {
	certs, derErr := x509.ParseCertificates(data)
	if derErr == nil && len(certs) > 0 {
		return certs, nil
	}
	certs, pemErr := ParsePEMCertificates(data)
	if pemErr == nil {
		return certs, nil
	}
	certs, p7Err := DecodePKCS7(data)
	if p7Err == nil {
		return certs, nil
	}
	return nil, fmt.Errorf("not DER (%v) or PEM (%v) or PKCS#7 (%v)", derErr, pemErr, p7Err)
}

// IsPEM returns true if the data appears to contain PEM-encoded content.
func IsPEM(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN"))
}

// DistinguishedName renders a DER-encoded Name (an RDNSequence, as found in
// a certificate's RawIssuer or a CMS IssuerAndSerialNumber) as an RFC 4514
// string. Both sides of an issuer comparison must be rendered through this
// function so attribute order and escaping agree.
func DistinguishedName(der []byte) (string, error) {
	var rdns pkix.RDNSequence
	rest, err := asn1.Unmarshal(der, &rdns)
	if err != nil {
		return "", fmt.Errorf("parsing distinguished name: %w", err)
	}
	if len(rest) > 0 {
		return "", errors.New("trailing data after distinguished name")
	}
	return rdns.String(), nil
}

// IssuerName returns the RFC 4514 rendering of the certificate's raw issuer,
// falling back to the parsed pkix.Name when the raw bytes cannot be decoded.
func IssuerName(cert *x509.Certificate) string {
	name, err := DistinguishedName(cert.RawIssuer)
	if err != nil {
		return cert.Issuer.String()
	}
	return name
}

// SubjectKeyID returns the certificate's subject key identifier: the embedded
// extension value when present, otherwise the RFC 5280 method 1 value (SHA-1
// of the subjectPublicKey BIT STRING). Returns nil if neither is available.
func SubjectKeyID(cert *x509.Certificate) []byte {
	if len(cert.SubjectKeyId) > 0 {
		return bytes.Clone(cert.SubjectKeyId)
	}
	bits, err := extractPublicKeyBitString(cert.RawSubjectPublicKeyInfo)
	if err != nil {
		return nil
	}
	sum := sha1.Sum(bits)
	return sum[:]
}

// extractPublicKeyBitString parses a DER-encoded SubjectPublicKeyInfo and
// returns the raw public key bytes (the BIT STRING value, excluding the
// unused-bits octet).
func extractPublicKeyBitString(spkiDER []byte) ([]byte, error) {
	var spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spkiDER, &spki); err != nil {
		return nil, fmt.Errorf("parsing SubjectPublicKeyInfo: %w", err)
	}
	return spki.PublicKey.Bytes, nil
}

// SerialBytes returns the certificate serial number as an unsigned big-endian
// magnitude, the form identifiers carry it in.
func SerialBytes(cert *x509.Certificate) []byte {
	if cert.SerialNumber == nil {
		return nil
	}
	return cert.SerialNumber.Bytes()
}

// ParseHex decodes a hex string that may use upper or lower case and may
// separate octets with colons or spaces ("0A:1B", "0a 1b", "0a1b").
func ParseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(":", "", " ", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decoding hex %q: %w", s, err)
	}
	return b, nil
}

// CertFingerprint returns the SHA-256 fingerprint of a certificate as a lowercase hex string.
func CertFingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(hash[:])
}

// CertToPEM encodes a certificate as PEM.
func CertToPEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Raw,
	}))
}
