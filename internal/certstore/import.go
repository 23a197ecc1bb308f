package certstore

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sensiblebit/cmsresolve"
)

// ImportInput holds parameters for ImportData.
type ImportInput struct {
	Data      []byte   // raw file content
	Path      string   // source path, used for logging and extension detection
	Passwords []string // passwords to try for PKCS#12 and JKS containers
}

// pkcs12Extensions mark files that can only be PKCS#12, so a decode failure
// is reported as a password problem.
var pkcs12Extensions = map[string]bool{
	".p12": true,
	".pfx": true,
}

// ParseImportData extracts every certificate from input. Formats are tried in
// order: PEM, JKS, DER / PKCS#7, PKCS#12. PKCS#12 is attempted for any input
// the earlier formats reject, including stdin ("-"). Private keys are ignored.
func ParseImportData(input ImportInput) ([]*x509.Certificate, error) {
	if len(input.Data) == 0 {
		return nil, errors.New("no data")
	}

	if cmsresolve.IsPEM(input.Data) {
		slog.Debug("parsing as PEM", "path", input.Path)
		return cmsresolve.ParsePEMCertificates(input.Data)
	}

	if cmsresolve.IsJKS(input.Data) {
		slog.Debug("parsing as JKS", "path", input.Path)
		for _, password := range input.Passwords {
			certs, err := cmsresolve.DecodeJKS(input.Data, password)
			if err == nil {
				return certs, nil
			}
			slog.Debug("JKS decode failed", "path", input.Path, "error", err)
		}
		return nil, fmt.Errorf("decoding JKS %s with any provided password", input.Path)
	}

	certs, anyErr := cmsresolve.ParseCertificatesAny(input.Data)
	if anyErr == nil {
		return certs, nil
	}

	slog.Debug("parsing as PKCS#12", "path", input.Path)
	p12Err := errors.New("no passwords supplied")
	for _, password := range input.Passwords {
		certs, err := cmsresolve.DecodePKCS12(input.Data, password)
		if err == nil {
			return certs, nil
		}
		slog.Debug("PKCS#12 decode failed", "path", input.Path, "error", err)
		p12Err = err
	}
	if pkcs12Extensions[strings.ToLower(filepath.Ext(input.Path))] {
		return nil, fmt.Errorf("decoding PKCS#12 %s with any provided password: %w", input.Path, p12Err)
	}
	return nil, fmt.Errorf("no certificates found in %s: %w", input.Path, errors.Join(anyErr, p12Err))
}

// ImportData parses input and adds every certificate to store. It returns
// the number of certificates that were not already present.
func ImportData(ctx context.Context, store *Store, input ImportInput) (int, error) {
	certs, err := ParseImportData(input)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, cert := range certs {
		ok, err := store.Add(ctx, cert)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		} else {
			slog.Debug("certificate already in store", "path", input.Path, "serial", cert.SerialNumber.String())
		}
	}
	return added, nil
}
