package internal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sensiblebit/cmsresolve/internal/certstore"
	"github.com/sensiblebit/cmsresolve/internal/pkcs9"
)

// ResolutionAnnotation returns a parenthetical annotation like
// " (1 unresolved, 2 from stores)" for non-zero counts, or an empty string.
func ResolutionAnnotation(results []ResolutionResult) string {
	var unresolved, fromStores int
	for _, r := range results {
		switch {
		case !r.Resolved:
			unresolved++
		case r.Source != SourceMessage:
			fromStores++
		}
	}
	var parts []string
	if unresolved > 0 {
		parts = append(parts, fmt.Sprintf("%d unresolved", unresolved))
	}
	if fromStores > 0 {
		parts = append(parts, fmt.Sprintf("%d from stores", fromStores))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// marshalJSON renders v as indented JSON with a trailing newline.
func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func unsupportedFormat(format string) error {
	return fmt.Errorf("unsupported output format %q (use text or json)", format)
}

// FormatResolutionResults renders resolution results as "text" or "json".
func FormatResolutionResults(results []ResolutionResult, format string) (string, error) {
	switch format {
	case "text":
		return formatResolutionText(results), nil
	case "json":
		if results == nil {
			results = []ResolutionResult{}
		}
		return marshalJSON(results)
	default:
		return "", unsupportedFormat(format)
	}
}

func formatResolutionText(results []ResolutionResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s %d: %s\n", titleCase(r.Role), r.Index, r.Identifier)
		if !r.Resolved {
			sb.WriteString("  Not resolved\n")
			continue
		}
		fmt.Fprintf(&sb, "  Source:      %s\n", r.Source)
		fmt.Fprintf(&sb, "  Subject:     %s\n", r.Subject)
		fmt.Fprintf(&sb, "  Issuer:      %s\n", r.Issuer)
		fmt.Fprintf(&sb, "  Serial:      %s\n", r.Serial)
		if r.SKI != "" {
			fmt.Fprintf(&sb, "  SKI:         %s\n", r.SKI)
		}
		fmt.Fprintf(&sb, "  Not After:   %s\n", r.NotAfter)
		fmt.Fprintf(&sb, "  SHA-256:     %s\n", r.SHA256)
	}
	resolved := 0
	for _, r := range results {
		if r.Resolved {
			resolved++
		}
	}
	if len(results) > 0 {
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Resolved %d of %d identifiers%s\n", resolved, len(results), ResolutionAnnotation(results))
	return sb.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// AttributeResult is the printable form of one signed attribute.
type AttributeResult struct {
	Signer int    `json:"signer"`
	Kind   string `json:"kind"`
	OID    string `json:"oid"`
	Value  string `json:"value"`
}

// DescribeAttribute renders attr for output. Generic attributes show the hex
// DER encoding of their value.
func DescribeAttribute(signer int, attr pkcs9.Attribute) AttributeResult {
	result := AttributeResult{
		Signer: signer,
		Kind:   attr.Kind().String(),
		OID:    attr.OID().String(),
	}
	switch a := attr.(type) {
	case *pkcs9.DocumentName:
		result.Value = a.Name
	case *pkcs9.DocumentDescription:
		result.Value = a.Description
	case *pkcs9.SigningTime:
		result.Value = a.Time.UTC().Format(time.RFC3339)
	case *pkcs9.ContentType:
		result.Value = a.ContentType.String()
	case *pkcs9.MessageDigest:
		result.Value = hex.EncodeToString(a.Digest)
	default:
		result.Value = hex.EncodeToString(attr.RawValue())
	}
	return result
}

// FormatAttributeResults renders attributes as "text" or "json".
func FormatAttributeResults(results []AttributeResult, format string) (string, error) {
	switch format {
	case "text":
		var sb strings.Builder
		signer := -1
		for _, r := range results {
			if r.Signer != signer {
				signer = r.Signer
				fmt.Fprintf(&sb, "Signer %d:\n", signer)
			}
			fmt.Fprintf(&sb, "  %-20s %-28s %s\n", r.Kind, r.OID, r.Value)
		}
		if len(results) == 0 {
			sb.WriteString("No signed attributes\n")
		}
		return sb.String(), nil
	case "json":
		if results == nil {
			results = []AttributeResult{}
		}
		return marshalJSON(results)
	default:
		return "", unsupportedFormat(format)
	}
}

// FormatStoreEntries renders store rows as "text" or "json".
func FormatStoreEntries(entries []certstore.Entry, format string) (string, error) {
	switch format {
	case "text":
		var sb strings.Builder
		for i, e := range entries {
			if i > 0 {
				sb.WriteString("\n")
			}
			status := ""
			if e.Archived {
				status = " [archived]"
			}
			fmt.Fprintf(&sb, "Certificate %s%s\n", e.Fingerprint, status)
			fmt.Fprintf(&sb, "  Subject:     %s\n", e.Subject)
			fmt.Fprintf(&sb, "  Issuer:      %s\n", e.Issuer)
			fmt.Fprintf(&sb, "  Serial:      %s\n", e.SerialNumber)
			if e.SubjectKeyIdentifier != "" {
				fmt.Fprintf(&sb, "  SKI:         %s\n", e.SubjectKeyIdentifier)
			}
			fmt.Fprintf(&sb, "  Not After:   %s\n", e.NotAfter.UTC().Format(time.RFC3339))
		}
		if len(entries) == 0 {
			sb.WriteString("Store is empty\n")
		}
		return sb.String(), nil
	case "json":
		if entries == nil {
			entries = []certstore.Entry{}
		}
		return marshalJSON(entries)
	default:
		return "", unsupportedFormat(format)
	}
}
