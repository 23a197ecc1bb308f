package pkcs9

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"testing"
	"time"
)

func TestSpecialize_RoundTrip(t *testing.T) {
	// WHY: Every well-known attribute built by its constructor must specialize back to the same kind and value from its DER encoding alone.
	t.Parallel()

	docName, err := NewDocumentName("Quarterly report.docx")
	if err != nil {
		t.Fatal(err)
	}
	docDesc, err := NewDocumentDescription("Résumé – ünïcode ✓")
	if err != nil {
		t.Fatal(err)
	}
	signed := time.Date(2024, 3, 15, 12, 30, 45, 0, time.UTC)
	sigTime, err := NewSigningTime(signed)
	if err != nil {
		t.Fatal(err)
	}
	farFuture := time.Date(2051, 1, 2, 3, 4, 5, 0, time.UTC)
	sigTimeGen, err := NewSigningTime(farFuture)
	if err != nil {
		t.Fatal(err)
	}
	dataOID := asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	contentType, err := NewContentType(dataOID)
	if err != nil {
		t.Fatal(err)
	}
	digest := bytes.Repeat([]byte{0xab}, 32)
	msgDigest, err := NewMessageDigest(digest)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		attr  Attribute
		kind  Kind
		check func(t *testing.T, got Attribute)
	}{
		{name: "document name", attr: docName, kind: KindDocumentName, check: func(t *testing.T, got Attribute) {
			if n := got.(*DocumentName).Name; n != "Quarterly report.docx" {
				t.Errorf("Name = %q", n)
			}
		}},
		{name: "document description", attr: docDesc, kind: KindDocumentDescription, check: func(t *testing.T, got Attribute) {
			if d := got.(*DocumentDescription).Description; d != "Résumé – ünïcode ✓" {
				t.Errorf("Description = %q", d)
			}
		}},
		{name: "signing time UTCTime", attr: sigTime, kind: KindSigningTime, check: func(t *testing.T, got Attribute) {
			if tm := got.(*SigningTime).Time; !tm.Equal(signed) || tm.Location() != time.UTC {
				t.Errorf("Time = %v", tm)
			}
		}},
		{name: "signing time GeneralizedTime", attr: sigTimeGen, kind: KindSigningTime, check: func(t *testing.T, got Attribute) {
			if tm := got.(*SigningTime).Time; !tm.Equal(farFuture) {
				t.Errorf("Time = %v", tm)
			}
		}},
		{name: "content type", attr: contentType, kind: KindContentType, check: func(t *testing.T, got Attribute) {
			if ct := got.(*ContentType).ContentType; !ct.Equal(dataOID) {
				t.Errorf("ContentType = %s", ct)
			}
		}},
		{name: "message digest", attr: msgDigest, kind: KindMessageDigest, check: func(t *testing.T, got Attribute) {
			if d := got.(*MessageDigest).Digest; !bytes.Equal(d, digest) {
				t.Errorf("Digest = %x", d)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.attr.Kind() != tt.kind {
				t.Fatalf("constructor Kind = %s, want %s", tt.attr.Kind(), tt.kind)
			}
			got, err := Specialize(tt.attr.OID(), tt.attr.RawValue())
			if err != nil {
				t.Fatalf("Specialize: %v", err)
			}
			if got.Kind() != tt.kind {
				t.Fatalf("Kind = %s, want %s", got.Kind(), tt.kind)
			}
			if !got.OID().Equal(tt.attr.OID()) || !bytes.Equal(got.RawValue(), tt.attr.RawValue()) {
				t.Error("OID or encoding changed")
			}
			if KindOf(tt.attr.OID()) != tt.kind {
				t.Errorf("KindOf = %s", KindOf(tt.attr.OID()))
			}
			tt.check(t, got)
		})
	}
}

func TestSigningTime_EncodingChoice(t *testing.T) {
	// WHY: RFC 5652 requires UTCTime for 1950 through 2049 and GeneralizedTime outside it; the wrong tag breaks interoperability with strict verifiers.
	t.Parallel()
	tests := []struct {
		year int
		tag  byte
	}{
		{year: 1950, tag: asn1.TagUTCTime},
		{year: 2049, tag: asn1.TagUTCTime},
		{year: 1949, tag: asn1.TagGeneralizedTime},
		{year: 2050, tag: asn1.TagGeneralizedTime},
	}
	for _, tt := range tests {
		st, err := NewSigningTime(time.Date(tt.year, 6, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("year %d: %v", tt.year, err)
		}
		if got := st.RawValue()[0]; got != tt.tag {
			t.Errorf("year %d: tag %d, want %d", tt.year, got, tt.tag)
		}
	}
}

func TestSpecialize_GenericPassthrough(t *testing.T) {
	// WHY: Unrecognized attributes must survive byte-exact so callers can re-encode or inspect them, and Specialize must not alias the caller's buffer.
	t.Parallel()
	oid := asn1.ObjectIdentifier{1, 2, 3, 4, 5}
	raw := []byte{0x0c, 0x03, 'a', 'b', 'c'}

	got, err := Specialize(oid, raw)
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if got.Kind() != KindGeneric {
		t.Fatalf("Kind = %s, want Generic", got.Kind())
	}
	if _, ok := got.(*Generic); !ok {
		t.Fatalf("type = %T, want *Generic", got)
	}
	if !got.OID().Equal(oid) || !bytes.Equal(got.RawValue(), raw) {
		t.Error("generic attribute changed its input")
	}
	raw[2] = 'z'
	if got.RawValue()[2] != 'a' {
		t.Error("generic attribute aliases the input buffer")
	}
}

func TestSpecialize_Malformed(t *testing.T) {
	// WHY: A well-known OID with a broken value is a decode failure, never a silent downgrade to Generic.
	t.Parallel()
	tests := []struct {
		name string
		oid  asn1.ObjectIdentifier
		raw  []byte
	}{
		{name: "name not octet string", oid: OIDDocumentName, raw: []byte{0x0c, 0x01, 'a'}},
		{name: "name odd length", oid: OIDDocumentName, raw: []byte{0x04, 0x03, 'a', 0, 'b'}},
		{name: "description trailing data", oid: OIDDocumentDescription, raw: []byte{0x04, 0x02, 'a', 0, 0x05, 0x00}},
		{name: "signing time wrong tag", oid: OIDSigningTime, raw: []byte{0x04, 0x01, 0x00}},
		{name: "signing time garbage", oid: OIDSigningTime, raw: []byte{0x17, 0x03, '9', '9', '9'}},
		{name: "content type truncated", oid: OIDContentType, raw: []byte{0x06, 0x05, 0x2a}},
		{name: "message digest empty", oid: OIDMessageDigest, raw: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Specialize(tt.oid, tt.raw)
			if err == nil {
				t.Fatalf("expected error, got %T", got)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Kind != KindOf(tt.oid) {
				t.Errorf("err = %#v, want *DecodeError of kind %s", err, KindOf(tt.oid))
			}
		})
	}
}

func TestDecodeUTF16_MissingTerminator(t *testing.T) {
	// WHY: Some producers omit the NUL terminator; the name must still decode.
	t.Parallel()
	got, err := Specialize(OIDDocumentName, []byte{0x04, 0x04, 'h', 0, 'i', 0})
	if err != nil {
		t.Fatalf("Specialize: %v", err)
	}
	if n := got.(*DocumentName).Name; n != "hi" {
		t.Errorf("Name = %q, want hi", n)
	}
}

func TestKindString(t *testing.T) {
	// WHY: Kind names appear in output and error messages.
	t.Parallel()
	if KindMessageDigest.String() != "MessageDigest" || Kind(99).String() != "Kind(99)" {
		t.Errorf("unexpected Kind strings %q, %q", KindMessageDigest, Kind(99))
	}
}
