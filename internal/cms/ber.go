package cms

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// maxBERDepth bounds nesting so hostile input cannot exhaust the stack.
const maxBERDepth = 64

// berToDER rewrites a single BER element with definite, minimal lengths.
// Streaming encoders (openssl cms -stream, most S/MIME agents) emit
// indefinite-length constructed values, which encoding/asn1 rejects.
// Constructed string types are kept constructed; only lengths change.
// DER input comes back byte-for-byte unchanged.
func berToDER(ber []byte) ([]byte, error) {
	if len(ber) == 0 {
		return nil, errors.New("ber: empty input")
	}
	var b cryptobyte.Builder
	rest, err := convertBERElement(&b, ber, 0)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, errors.New("ber: trailing data after element")
	}
	return b.Bytes()
}

func convertBERElement(b *cryptobyte.Builder, in []byte, depth int) ([]byte, error) {
	if depth > maxBERDepth {
		return nil, errors.New("ber: nesting too deep")
	}
	if len(in) < 2 {
		return nil, errors.New("ber: truncated element header")
	}
	tag := in[0]
	if tag&0x1f == 0x1f {
		return nil, fmt.Errorf("ber: high tag number form not supported (0x%02x)", tag)
	}
	constructed := tag&0x20 != 0

	rest := in[2:]
	length, indefinite := 0, false
	switch l := in[1]; {
	case l == 0x80:
		if !constructed {
			return nil, errors.New("ber: indefinite length on primitive element")
		}
		indefinite = true
	case l&0x80 == 0:
		length = int(l)
	default:
		n := int(l & 0x7f)
		if n > 4 || len(rest) < n {
			return nil, errors.New("ber: invalid long-form length")
		}
		for _, c := range rest[:n] {
			length = length<<8 | int(c)
		}
		rest = rest[n:]
	}
	if !indefinite && (length < 0 || length > len(rest)) {
		return nil, fmt.Errorf("ber: element length %d exceeds %d remaining bytes", length, len(rest))
	}

	var err error
	b.AddASN1(casn1.Tag(tag), func(child *cryptobyte.Builder) {
		switch {
		case indefinite:
			for {
				if len(rest) < 2 {
					err = errors.New("ber: missing end-of-contents")
					return
				}
				if rest[0] == 0 && rest[1] == 0 {
					rest = rest[2:]
					return
				}
				if rest, err = convertBERElement(child, rest, depth+1); err != nil {
					return
				}
			}
		case constructed:
			body := rest[:length]
			rest = rest[length:]
			for len(body) > 0 {
				if body, err = convertBERElement(child, body, depth+1); err != nil {
					return
				}
			}
		default:
			child.AddBytes(rest[:length])
			rest = rest[length:]
		}
	})
	return rest, err
}
