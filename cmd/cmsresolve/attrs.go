package main

import (
	"fmt"

	"github.com/sensiblebit/cmsresolve/internal"
	"github.com/spf13/cobra"
)

var attrsFormat string

var attrsCmd = &cobra.Command{
	Use:   "attrs <message>",
	Short: "Show the signed attributes of a CMS SignedData message",
	Example: `  cmsresolve attrs signed.p7s
  cmsresolve attrs signed.p7s --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runAttrs,
}

func init() {
	attrsCmd.Flags().StringVar(&attrsFormat, "format", "text", "Output format: text or json")
	registerCompletion(attrsCmd, completionInput{"format", formatCompletion})
}

func runAttrs(_ *cobra.Command, args []string) error {
	msg, err := readMessage(args[0])
	if err != nil {
		return err
	}
	if len(msg.Signers) == 0 {
		return fmt.Errorf("%s has no signers", args[0])
	}

	var results []internal.AttributeResult
	for i, s := range msg.Signers {
		for _, attr := range s.SignedAttrs {
			results = append(results, internal.DescribeAttribute(i, attr))
		}
	}

	output, err := internal.FormatAttributeResults(results, attrsFormat)
	if err != nil {
		return err
	}
	fmt.Print(output)
	return nil
}
