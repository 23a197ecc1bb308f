package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sensiblebit/cmsresolve/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	logLevel     string
	configPath   string
	passwordList string
	passwordFile string

	// cfg is loaded before any subcommand runs.
	cfg *internal.Config
)

var rootCmd = &cobra.Command{
	Use:   "cmsresolve",
	Short: "Resolve CMS signer and recipient certificates",
	Long:  "Resolve the signer and recipient identifiers of CMS messages to certificates, decode signed attributes, and manage local certificate stores.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		path, optional := configPath, false
		if path == "" {
			path, optional = defaultConfigPath(), true
		}
		loaded, err := internal.LoadConfig(path, optional)
		if err != nil {
			return err
		}
		cfg = loaded

		level := logLevel
		if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
			level = cfg.LogLevel
		}
		internal.SetupLogger(level)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (default: user config dir)")
	rootCmd.PersistentFlags().StringVarP(&passwordList, "passwords", "p", "", "Comma-separated passwords for PKCS#12 and JKS imports")
	rootCmd.PersistentFlags().StringVar(&passwordFile, "password-file", "", "File containing passwords, one per line")

	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{"config", fileCompletion})
	registerCompletion(rootCmd, completionInput{"password-file", fileCompletion})

	rootCmd.SetGlobalNormalizationFunc(underscoreToDash)

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(attrsCmd)
	rootCmd.AddCommand(storeCmd)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cmsresolve", "config.yaml")
}

// underscoreToDash lets --include_archived stand in for --include-archived.
func underscoreToDash(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}
