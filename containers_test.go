package cmsresolve

import (
	"bytes"
	"crypto/x509"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func TestDecodePKCS7_RoundTrip(t *testing.T) {
	// WHY: Certs-only PKCS#7 bundles are a common address-book export; decoding must return every certificate in bundle order.
	t.Parallel()
	ca, caKey := newTestCA(t, "TestCA")
	leaf, _ := newTestLeaf(t, ca, caKey, "leaf", 2, nil)

	der, err := EncodePKCS7([]*x509.Certificate{leaf, ca})
	if err != nil {
		t.Fatalf("EncodePKCS7: %v", err)
	}
	certs, err := DecodePKCS7(der)
	if err != nil {
		t.Fatalf("DecodePKCS7: %v", err)
	}
	if len(certs) != 2 || !certs[0].Equal(leaf) || !certs[1].Equal(ca) {
		t.Errorf("decoded %d certs in unexpected order", len(certs))
	}
}

func TestEncodePKCS7_Empty(t *testing.T) {
	// WHY: An empty bundle is a caller mistake and must be reported rather than encoded.
	t.Parallel()
	if _, err := EncodePKCS7(nil); err == nil {
		t.Error("expected error for empty certificate list")
	}
}

func TestDecodePKCS7_GarbageInput(t *testing.T) {
	// WHY: Garbage must produce an error, not a panic, because import tries it on unknown files.
	t.Parallel()
	if _, err := DecodePKCS7([]byte("garbage")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestDecodePKCS12(t *testing.T) {
	// WHY: Both key-bearing PFX files and certificate-only trust stores are imported; the leaf must come first and the wrong password must fail.
	t.Parallel()
	ca, caKey := newTestCA(t, "TestCA")
	leaf, leafKey := newTestLeaf(t, ca, caKey, "leaf", 2, nil)

	chainPFX, err := gopkcs12.Modern.Encode(leafKey, leaf, []*x509.Certificate{ca}, "secret")
	if err != nil {
		t.Fatalf("encode chain: %v", err)
	}
	trustPFX, err := gopkcs12.Modern.EncodeTrustStore([]*x509.Certificate{ca, leaf}, "secret")
	if err != nil {
		t.Fatalf("encode trust store: %v", err)
	}

	tests := []struct {
		name  string
		data  []byte
		first *x509.Certificate
	}{
		{name: "chain", data: chainPFX, first: leaf},
		{name: "trust store", data: trustPFX, first: ca},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			certs, err := DecodePKCS12(tt.data, "secret")
			if err != nil {
				t.Fatalf("DecodePKCS12: %v", err)
			}
			if len(certs) != 2 {
				t.Fatalf("got %d certs, want 2", len(certs))
			}
			if !certs[0].Equal(tt.first) {
				t.Errorf("first cert is %s, want %s", certs[0].Subject, tt.first.Subject)
			}
			if _, err := DecodePKCS12(tt.data, "wrong"); err == nil {
				t.Error("expected error with wrong password")
			}
		})
	}
}

func TestDecodePKCS12_ReportsBothDecoders(t *testing.T) {
	// WHY: A file that neither the key-chain nor the trust-store decoder accepts must surface both failures, since either may explain the problem.
	t.Parallel()
	ca, _ := newTestCA(t, "TestCA")
	trustPFX, err := gopkcs12.Modern.EncodeTrustStore([]*x509.Certificate{ca}, "secret")
	if err != nil {
		t.Fatalf("encode trust store: %v", err)
	}

	tests := []struct {
		name     string
		data     []byte
		password string
		wantIs   error
	}{
		{name: "wrong password", data: trustPFX, password: "wrong", wantIs: gopkcs12.ErrIncorrectPassword},
		{name: "garbage", data: []byte("not a pfx file"), password: "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodePKCS12(tt.data, tt.password)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("err = %v, want wrapping %v", err, tt.wantIs)
			}
			if strings.Count(err.Error(), "\n") < 1 {
				t.Errorf("err = %q, want both decoder errors", err)
			}
		})
	}
}

func TestDecodeJKS(t *testing.T) {
	// WHY: Java trust stores hold both trusted entries and key chains; every certificate in either kind of entry must be returned.
	t.Parallel()
	ca, caKey := newTestCA(t, "TestCA")
	leaf, leafKey := newTestLeaf(t, ca, caKey, "leaf", 2, nil)
	keyDER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	ks := keystore.New()
	if err := ks.SetTrustedCertificateEntry("ca", keystore.TrustedCertificateEntry{
		CreationTime: time.Now(),
		Certificate:  keystore.Certificate{Type: "X.509", Content: ca.Raw},
	}); err != nil {
		t.Fatalf("set trusted entry: %v", err)
	}
	if err := ks.SetPrivateKeyEntry("leaf", keystore.PrivateKeyEntry{
		CreationTime: time.Now(),
		PrivateKey:   keyDER,
		CertificateChain: []keystore.Certificate{
			{Type: "X.509", Content: leaf.Raw},
			{Type: "X.509", Content: ca.Raw},
		},
	}, []byte("changeit")); err != nil {
		t.Fatalf("set private key entry: %v", err)
	}
	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte("changeit")); err != nil {
		t.Fatalf("store JKS: %v", err)
	}

	if !IsJKS(buf.Bytes()) {
		t.Fatal("IsJKS = false for a JKS file")
	}
	certs, err := DecodeJKS(buf.Bytes(), "changeit")
	if err != nil {
		t.Fatalf("DecodeJKS: %v", err)
	}
	if len(certs) != 3 {
		t.Errorf("got %d certs, want 3", len(certs))
	}
	if _, err := DecodeJKS(buf.Bytes(), "wrong"); err == nil {
		t.Error("expected error with wrong password")
	}
	if IsJKS([]byte{0x30, 0x82}) {
		t.Error("IsJKS = true for DER input")
	}
}
