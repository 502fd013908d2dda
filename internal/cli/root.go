// Package cli implements credctl, the command-line client for the issuer and
// verifier APIs.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
)

// options are the persistent flags shared by every subcommand.
type options struct {
	issuerURL   string
	verifierURL string
	timeout     time.Duration
	jsonOutput  bool
	noColor     bool
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// NewRootCmd builds the credctl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "credctl",
		Short: "Issue, verify and inspect credentials",
		Long:  "credctl talks to the issuance and verification services over their HTTP APIs.",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.issuerURL, "issuer", envOr("CREDRELAY_ISSUER_URL", "http://127.0.0.1:3001"), "Issuer base URL")
	pf.StringVar(&opts.verifierURL, "verifier", envOr("CREDRELAY_VERIFIER_URL", "http://127.0.0.1:3002"), "Verifier base URL")
	pf.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	pf.BoolVar(&opts.jsonOutput, "json", false, "Output raw JSON")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newIssueCmd(opts),
		newVerifyCmd(opts),
		newListCmd(opts),
		newGetCmd(opts),
		newResyncCmd(opts),
		newClearCmd(opts),
	)

	return root
}

// Execute runs credctl against os.Args and prints any error to stderr.
func Execute() error {
	root := NewRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		errorColor.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printField(w io.Writer, label string, value any) {
	labelColor.Fprintf(w, "  %-10s", label+":")
	fmt.Fprintf(w, " %v\n", value)
}
