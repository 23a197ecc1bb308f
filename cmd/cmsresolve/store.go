package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sensiblebit/cmsresolve/internal"
	"github.com/sensiblebit/cmsresolve/internal/certstore"
	"github.com/spf13/cobra"
)

var (
	storeLocation        string
	storeIncludeArchived bool
	storeFormat          string
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage local certificate stores",
	Long: `Manage the SQLite certificate stores searched by resolve. A store is named
by a location (CurrentUser, LocalMachine or System) and a store name. The
System location holds the read-only Mozilla root store "Root".`,
}

var storeImportCmd = &cobra.Command{
	Use:   "import <store> <file>...",
	Short: "Import certificates from PEM, DER, PKCS#7, PKCS#12 or JKS files",
	Example: `  cmsresolve store import AddressBook alice.pem
  cmsresolve store import LocalMachine/My server.p12 --passwords secret`,
	Args: cobra.MinimumNArgs(2),
	RunE: runStoreImport,
}

var storeListCmd = &cobra.Command{
	Use:   "list <store>",
	Short: "List the certificates in a store",
	Example: `  cmsresolve store list My
  cmsresolve store list System/Root --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreList,
}

var storeArchiveCmd = &cobra.Command{
	Use:   "archive <store> <sha256-fingerprint>...",
	Short: "Archive certificates so resolve skips them",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStore(cmd.Context(), args, (*certstore.Store).Archive, "Archived")
	},
}

var storeRemoveCmd = &cobra.Command{
	Use:   "remove <store> <sha256-fingerprint>...",
	Short: "Delete certificates from a store",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStore(cmd.Context(), args, (*certstore.Store).Remove, "Removed")
	},
}

func init() {
	storeCmd.PersistentFlags().StringVar(&storeLocation, "location", "CurrentUser", "Default store location: CurrentUser, LocalMachine, System")
	registerCompletion(storeCmd, completionInput{"location", locationCompletion})

	storeListCmd.Flags().BoolVar(&storeIncludeArchived, "include-archived", false, "Include archived certificates")
	storeListCmd.Flags().StringVar(&storeFormat, "format", "text", "Output format: text or json")
	registerCompletion(storeListCmd, completionInput{"format", formatCompletion})

	storeCmd.AddCommand(storeImportCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeArchiveCmd)
	storeCmd.AddCommand(storeRemoveCmd)
}

// openStore opens the store named by arg ("Name" or "Location/Name"). The
// platform default directories are used unless the config overrides them.
func openStore(ctx context.Context, arg string, flags certstore.OpenFlags) (*certstore.Store, error) {
	ref, err := internal.ParseStoreRef(arg, storeLocation)
	if err != nil {
		return nil, err
	}
	if cfg.UserDir == "" && cfg.MachineDir == "" {
		return certstore.OpenStore(ctx, ref.Name, ref.Location, flags)
	}
	opener, err := cfg.Opener(nil)
	if err != nil {
		return nil, err
	}
	return opener.Open(ctx, ref.Name, ref.Location, flags)
}

func closeStore(store *certstore.Store) {
	if err := store.Close(); err != nil {
		slog.Warn("closing store", "store", store.Name(), "error", err)
	}
}

func runStoreImport(cmd *cobra.Command, args []string) error {
	passwords, err := internal.ProcessPasswords(passwordList, passwordFile)
	if err != nil {
		return fmt.Errorf("loading passwords: %w", err)
	}

	store, err := openStore(cmd.Context(), args[0], 0)
	if err != nil {
		return err
	}
	defer closeStore(store)

	total := 0
	for _, path := range args[1:] {
		data, err := readInput(path)
		if err != nil {
			return err
		}
		n, err := certstore.ImportData(cmd.Context(), store, certstore.ImportInput{
			Data:      data,
			Path:      path,
			Passwords: passwords,
		})
		if err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
		slog.Debug("imported certificates", "path", path, "added", n)
		total += n
	}
	fmt.Printf("Imported %d certificate(s) into %s\\%s\n", total, store.Location(), store.Name())
	return nil
}

func runStoreList(cmd *cobra.Command, args []string) error {
	flags := certstore.ReadOnly
	if storeIncludeArchived {
		flags |= certstore.IncludeArchived
	}
	store, err := openStore(cmd.Context(), args[0], flags)
	if err != nil {
		return err
	}
	defer closeStore(store)

	entries, err := store.Entries(cmd.Context())
	if err != nil {
		return err
	}
	output, err := internal.FormatStoreEntries(entries, storeFormat)
	if err != nil {
		return err
	}
	fmt.Print(output)
	return nil
}

func updateStore(ctx context.Context, args []string, op func(*certstore.Store, context.Context, string) error, verb string) error {
	store, err := openStore(ctx, args[0], certstore.OpenExistingOnly)
	if err != nil {
		return err
	}
	defer closeStore(store)

	for _, fp := range args[1:] {
		if err := op(store, ctx, fp); err != nil {
			return fmt.Errorf("%s: %w", fp, err)
		}
		fmt.Printf("%s %s\n", verb, fp)
	}
	return nil
}
