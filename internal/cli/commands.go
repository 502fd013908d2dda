package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/credrelay/internal/adapter/driving/http"
	"github.com/ericfisherdev/credrelay/internal/domain/model"
)

// readData parses a JSON object from the flag value, "@file", or "-" for stdin.
func readData(cmd *cobra.Command, raw string) (model.Data, error) {
	var src []byte
	switch {
	case raw == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		src = b
	case strings.HasPrefix(raw, "@"):
		b, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		src = b
	default:
		src = []byte(raw)
	}

	var data model.Data
	if err := json.Unmarshal(src, &data); err != nil {
		return nil, fmt.Errorf("data must be a JSON object: %w", err)
	}
	if data == nil {
		return nil, errors.New("data must be a JSON object")
	}
	return data, nil
}

func newIssueCmd(opts *options) *cobra.Command {
	var dataFlag string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new credential",
		Example: `  credctl issue --data '{"userId":"u1","role":"admin"}'
  credctl issue --data @claims.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readData(cmd, dataFlag)
			if err != nil {
				return err
			}

			var resp httphandler.IssueResponse
			err = newAPIClient(opts.timeout).do(cmd.Context(), http.MethodPost, opts.issuerURL, "issue",
				map[string]any{"data": data}, &resp)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(w, resp)
			}
			successColor.Fprintln(w, resp.Message)
			printCredential(w, resp.Credential)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataFlag, "data", "d", "", `Credential data as JSON, "@file" or "-" for stdin`)
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newVerifyCmd(opts *options) *cobra.Command {
	var (
		idFlag   string
		dataFlag string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a credential by id or by data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := map[string]any{}
			if idFlag != "" {
				req["id"] = idFlag
			}
			if dataFlag != "" {
				data, err := readData(cmd, dataFlag)
				if err != nil {
					return err
				}
				req["data"] = data
			}
			if len(req) == 0 {
				return errors.New("either --id or --data is required")
			}

			var resp httphandler.VerifyResponse
			if err := newAPIClient(opts.timeout).do(cmd.Context(), http.MethodPost, opts.verifierURL, "verify", req, &resp); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(w, resp)
			}
			if !resp.IsValid {
				errorColor.Fprintln(w, "✗ "+resp.Message)
				return nil
			}
			successColor.Fprintln(w, "✓ "+resp.Message)
			if resp.Credential != nil {
				printField(w, "id", resp.Credential.ID)
				printField(w, "status", resp.Credential.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "Credential id")
	cmd.Flags().StringVarP(&dataFlag, "data", "d", "", `Credential data as JSON, "@file" or "-" for stdin`)
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var fromVerifier bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List credentials held by the issuer (or the verifier replica)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, source := opts.issuerURL, "issuer"
			if fromVerifier {
				base, source = opts.verifierURL, "verifier"
			}

			var resp httphandler.ListCredentialsResponse
			if err := newAPIClient(opts.timeout).do(cmd.Context(), http.MethodGet, base, "credentials", nil, &resp); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(w, resp)
			}
			headerColor.Fprintf(w, "%d credential(s) on %s\n", resp.Count, source)
			for _, c := range resp.Credentials {
				fmt.Fprintf(w, "  %s  %s  ", c.ID, c.IssuedBy)
				dimColor.Fprintf(w, "%s %s\n", c.Status, c.IssuedAt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromVerifier, "replica", false, "List the verifier's replica instead of the issuer's store")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a single issued credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httphandler.GetCredentialResponse
			if err := newAPIClient(opts.timeout).do(cmd.Context(), http.MethodGet, opts.issuerURL, "credential/"+args[0], nil, &resp); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(w, resp)
			}
			printCredential(w, resp.Credential)
			return nil
		},
	}
}

func newResyncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Push the issuer's full credential set to the verifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp httphandler.ResyncResponse
			if err := newAPIClient(opts.timeout).do(cmd.Context(), http.MethodPost, opts.issuerURL, "admin/resync", nil, &resp); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(w, resp)
			}
			successColor.Fprintln(w, resp.Message)
			return nil
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every issued credential and reset the worker counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}

			var resp httphandler.MessageResponse
			if err := newAPIClient(opts.timeout).do(cmd.Context(), http.MethodDelete, opts.issuerURL, "credentials", nil, &resp); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(w, resp)
			}
			successColor.Fprintln(w, resp.Message)
			dimColor.Fprintln(w, "The verifier keeps its replica until the next resync.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the bulk delete")
	return cmd
}

func printCredential(w io.Writer, c httphandler.CredentialResponse) {
	printField(w, "id", c.ID)
	printField(w, "issuedBy", c.IssuedBy)
	printField(w, "issuedAt", c.IssuedAt)
	printField(w, "status", c.Status)
	data, _ := json.Marshal(c.Data)
	printField(w, "data", string(data))
}
