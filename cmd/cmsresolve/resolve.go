package main

import (
	"fmt"

	"github.com/sensiblebit/cmsresolve/internal"
	"github.com/sensiblebit/cmsresolve/internal/certstore"
	"github.com/sensiblebit/cmsresolve/internal/recipient"
	"github.com/spf13/cobra"
)

var (
	resolveFormat       string
	resolveStores       []string
	resolveNoStores     bool
	resolveSkipEmbedded bool
	resolveStrict       bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <message>",
	Short: "Resolve signer and recipient certificates of a CMS message",
	Long: `Resolve every signer and recipient identifier in a CMS SignedData or
EnvelopedData message. Certificates embedded in the message are searched
first, then the configured certificate stores in order.`,
	Example: `  cmsresolve resolve signed.p7s
  cmsresolve resolve mail.p7m --store CurrentUser/AddressBook
  cat signed.p7s | cmsresolve resolve - --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "text", "Output format: text or json")
	resolveCmd.Flags().StringArrayVar(&resolveStores, "store", nil, "Store to search as Location/Name (repeatable, replaces the configured list)")
	resolveCmd.Flags().BoolVar(&resolveNoStores, "no-stores", false, "Only search certificates embedded in the message")
	resolveCmd.Flags().BoolVar(&resolveSkipEmbedded, "skip-embedded", false, "Ignore certificates embedded in the message")
	resolveCmd.Flags().BoolVar(&resolveStrict, "strict", false, "Exit with an error if any identifier is unresolved")

	registerCompletion(resolveCmd, completionInput{"format", formatCompletion})
}

func runResolve(cmd *cobra.Command, args []string) error {
	msg, err := readMessage(args[0])
	if err != nil {
		return err
	}

	input := internal.ResolveInput{
		Message:      msg,
		Tracker:      certstore.NewTracker(),
		SkipEmbedded: resolveSkipEmbedded,
	}
	if !resolveNoStores {
		opener, err := cfg.Opener(input.Tracker)
		if err != nil {
			return err
		}
		refs, err := searchRefs()
		if err != nil {
			return err
		}
		input.Opener = opener
		input.Stores = refs
	}

	results, err := internal.ResolveMessage(cmd.Context(), input)
	if err != nil {
		return err
	}

	output, err := internal.FormatResolutionResults(results, resolveFormat)
	if err != nil {
		return err
	}
	fmt.Print(output)

	if resolveStrict {
		for _, r := range results {
			if !r.Resolved {
				return fmt.Errorf("%s %d not resolved: %s", r.Role, r.Index, r.Identifier)
			}
		}
	}
	return nil
}

// searchRefs returns the stores named by --store, or the configured list.
func searchRefs() ([]recipient.StoreRef, error) {
	if len(resolveStores) == 0 {
		return cfg.StoreRefs()
	}
	refs := make([]recipient.StoreRef, 0, len(resolveStores))
	for _, s := range resolveStores {
		ref, err := internal.ParseStoreRef(s, certstore.CurrentUser.String())
		if err != nil {
			return nil, fmt.Errorf("invalid --store %q: %w", s, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
