package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/protolab/crew/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan [text]",
	Short: "Scan text for PII-like and secret-like patterns",
	Long: `Scan text for email addresses and secret-like keywords. Reads the
arguments, or stdin when no arguments are given. Exits non-zero when
the text has findings, so it can gate scripts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var text string
		if len(args) > 0 {
			text = strings.Join(args, " ")
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			text = string(data)
		}

		result := scan.Text(text)
		if result.OK {
			ui.Success("no findings")
			return nil
		}

		for _, f := range result.Findings {
			ui.Warning("%s: %s", f.Kind, f.Snippet)
		}
		os.Exit(1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
