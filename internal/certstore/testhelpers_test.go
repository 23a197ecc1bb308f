package certstore

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// testCA holds a CA certificate and its private key for signing leaf certs.
type testCA struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// testLeaf holds a leaf certificate signed by a CA, plus its private key.
type testLeaf struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// newTestCA generates a self-signed ECDSA root CA with the given common name.
func newTestCA(t *testing.T, cn string) testCA {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate CA key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create CA: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse CA: %v", err)
	}
	return testCA{cert: cert, key: key}
}

// newTestLeaf issues a leaf with the given serial. A nil ski leaves the
// extension out.
func newTestLeaf(t *testing.T, ca testCA, cn string, serial int64, ski []byte) testLeaf {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		SubjectKeyId: ski,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	return testLeaf{cert: cert, key: key}
}

func newPKCS12Bundle(t *testing.T, leaf testLeaf, ca testCA, password string) []byte {
	t.Helper()
	pfx, err := gopkcs12.Modern.Encode(leaf.key, leaf.cert, []*x509.Certificate{ca.cert}, password)
	if err != nil {
		t.Fatalf("encode PKCS#12: %v", err)
	}
	return pfx
}

func newJKSBundle(t *testing.T, ca testCA, password string) []byte {
	t.Helper()
	ks := keystore.New()
	if err := ks.SetTrustedCertificateEntry("ca", keystore.TrustedCertificateEntry{
		CreationTime: time.Now(),
		Certificate:  keystore.Certificate{Type: "X.509", Content: ca.cert.Raw},
	}); err != nil {
		t.Fatalf("set trusted entry: %v", err)
	}
	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		t.Fatalf("store JKS: %v", err)
	}
	return buf.Bytes()
}

// newTestOpener returns an opener rooted in fresh temporary directories.
func newTestOpener(t *testing.T, tracker *Tracker) *Opener {
	t.Helper()
	return &Opener{UserDir: t.TempDir(), MachineDir: t.TempDir(), Tracker: tracker}
}

// openWritable opens (creating) a CurrentUser store and closes it with the test.
func openWritable(t *testing.T, o *Opener, name string) *Store {
	t.Helper()
	s, err := o.Open(context.Background(), name, CurrentUser, 0)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
