package cmsresolve

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// DecodePKCS7 decodes a DER-encoded PKCS#7 bundle and returns the certificates it contains.
// Returns an error if decoding fails or the bundle contains no certificates.
func DecodePKCS7(derData []byte) ([]*x509.Certificate, error) {
	p7, err := pkcs7.Parse(derData)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#7: %w", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, errors.New("PKCS#7 bundle contains no certificates")
	}
	return p7.Certificates, nil
}

// EncodePKCS7 creates a certs-only PKCS#7/P7B bundle from a list of
// certificates. Returns the DER-encoded PKCS#7 SignedData structure.
func EncodePKCS7(certs []*x509.Certificate) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errors.New("no certificates to encode")
	}
	var derBytes []byte
	for _, cert := range certs {
		derBytes = append(derBytes, cert.Raw...)
	}
	return pkcs7.DegenerateCertificate(derBytes)
}

// DecodePKCS12 decodes a PKCS#12/PFX file and returns every certificate it
// holds. Files with a private key yield the leaf followed by its CA chain;
// trust-store files (certificates only) yield their certificates in order.
// The private key, if any, is discarded.
func DecodePKCS12(pfxData []byte, password string) ([]*x509.Certificate, error) {
	_, leaf, caCerts, err := gopkcs12.DecodeChain(pfxData, password)
	if err == nil {
		certs := make([]*x509.Certificate, 0, len(caCerts)+1)
		if leaf != nil {
			certs = append(certs, leaf)
		}
		return append(certs, caCerts...), nil
	}
	certs, tsErr := gopkcs12.DecodeTrustStore(pfxData, password)
	if tsErr != nil {
		return nil, fmt.Errorf("decoding PKCS#12: %w", errors.Join(err, tsErr))
	}
	return certs, nil
}

// IsJKS reports whether data starts with the Java KeyStore magic bytes.
func IsJKS(data []byte) bool {
	return len(data) >= 4 && data[0] == 0xFE && data[1] == 0xED && data[2] == 0xFE && data[3] == 0xED
}

// DecodeJKS decodes a Java KeyStore (JKS) and returns the certificates it
// contains: trusted certificate entries and the chains of private key
// entries. Individual entry errors are skipped; an error is returned only if
// the store cannot be loaded or holds no usable certificates.
func DecodeJKS(data []byte, password string) ([]*x509.Certificate, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, fmt.Errorf("loading JKS: %w", err)
	}

	var certs []*x509.Certificate
	for _, alias := range ks.Aliases() {
		switch {
		case ks.IsTrustedCertificateEntry(alias):
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				continue
			}
			cert, err := x509.ParseCertificate(entry.Certificate.Content)
			if err != nil {
				continue
			}
			certs = append(certs, cert)
		case ks.IsPrivateKeyEntry(alias):
			entry, err := ks.GetPrivateKeyEntry(alias, []byte(password))
			if err != nil {
				continue
			}
			for _, certEntry := range entry.CertificateChain {
				cert, err := x509.ParseCertificate(certEntry.Content)
				if err != nil {
					continue
				}
				certs = append(certs, cert)
			}
		}
	}

	if len(certs) == 0 {
		return nil, errors.New("JKS contains no usable certificates")
	}
	return certs, nil
}
