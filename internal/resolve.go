package internal

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/sensiblebit/cmsresolve"
	"github.com/sensiblebit/cmsresolve/internal/certstore"
	"github.com/sensiblebit/cmsresolve/internal/cms"
	"github.com/sensiblebit/cmsresolve/internal/recipient"
)

// SourceMessage marks a certificate found among those embedded in the message.
const SourceMessage = "message"

// ResolutionResult describes how one signer or recipient identifier resolved.
type ResolutionResult struct {
	Role       string `json:"role"`
	Index      int    `json:"index"`
	Identifier string `json:"identifier"`
	Resolved   bool   `json:"resolved"`
	Source     string `json:"source,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Issuer     string `json:"issuer,omitempty"`
	Serial     string `json:"serial,omitempty"`
	SKI        string `json:"subject_key_id,omitempty"`
	NotAfter   string `json:"not_after,omitempty"`
	SHA256     string `json:"sha256_fingerprint,omitempty"`
}

// ResolveInput configures ResolveMessage.
type ResolveInput struct {
	Message  *cms.Message
	Resolver *recipient.Resolver
	// Opener and Stores are consulted for identifiers the embedded
	// certificates do not resolve. A nil Opener skips the stores.
	Opener  recipient.StoreOpener
	Stores  []recipient.StoreRef
	Tracker *certstore.Tracker
	// SkipEmbedded ignores the certificates carried in the message.
	SkipEmbedded bool
}

// ResolveMessage resolves every signer and recipient identifier of the
// message, first against its embedded certificates and then against the
// configured stores. Unresolved identifiers are reported, not treated as
// errors. No certificate handles remain outstanding on return.
func ResolveMessage(ctx context.Context, input ResolveInput) ([]ResolutionResult, error) {
	resolver := input.Resolver
	if resolver == nil {
		resolver = recipient.NewResolver(nil)
	}

	embedded := certstore.NewCollection(input.Tracker)
	defer func() { _ = embedded.Close() }()
	if !input.SkipEmbedded {
		for _, cert := range input.Message.Certificates {
			if err := embedded.Add(cert); err != nil {
				return nil, fmt.Errorf("collecting embedded certificates: %w", err)
			}
		}
	}

	var results []ResolutionResult
	for i, s := range input.Message.Signers {
		r, err := resolveOne(ctx, resolver, embedded, input, "signer", i, s.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	for i, rcpt := range input.Message.Recipients {
		r, err := resolveOne(ctx, resolver, embedded, input, "recipient", i, rcpt.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func resolveOne(ctx context.Context, resolver *recipient.Resolver, embedded *certstore.Collection, input ResolveInput, role string, index int, id recipient.Identifier) (ResolutionResult, error) {
	result := ResolutionResult{Role: role, Index: index, Identifier: id.String()}

	cert, err := resolver.Resolve(embedded, id)
	if err != nil {
		return result, fmt.Errorf("resolving %s %d: %w", role, index, err)
	}
	source := SourceMessage
	if cert == nil && input.Opener != nil {
		var ref recipient.StoreRef
		cert, ref, err = resolver.FindInStores(ctx, input.Opener, input.Stores, id)
		if err != nil {
			return result, fmt.Errorf("resolving %s %d: %w", role, index, err)
		}
		source = ref.String()
	}
	if cert == nil {
		slog.Debug("identifier not resolved", "role", role, "index", index, "id", id.String())
		return result, nil
	}
	defer func() { _ = cert.Close() }()

	x := cert.X509()
	result.Resolved = true
	result.Source = source
	result.Subject = x.Subject.String()
	result.Issuer = cert.Issuer()
	result.Serial = hex.EncodeToString(cert.SerialNumber())
	result.SKI = cert.SubjectKeyIdentifier()
	result.NotAfter = cert.NotAfter().UTC().Format(time.RFC3339)
	result.SHA256 = cmsresolve.CertFingerprint(x)
	return result, nil
}
