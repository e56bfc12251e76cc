package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/equitybot/internal/config"
	"github.com/alanyoungcy/equitybot/internal/crypto"
	"github.com/alanyoungcy/equitybot/internal/domain"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// getAndPrint fetches path and prints the decoded body.
func getAndPrint(cmd *cobra.Command, path string, query url.Values) error {
	var out any
	if err := newClient().do(cmd.Context(), http.MethodGet, path, query, nil, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon mode, uptime and trading state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd, "/api/status", nil)
		},
	}
}

func tradingCmds() []*cobra.Command {
	start := &cobra.Command{
		Use:   "start [code...]",
		Short: "Start trading the given symbols, or every symbol switched on",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Started []string `json:"started"`
			}
			body := map[string]any{"codes": args}
			if err := newClient().do(cmd.Context(), http.MethodPost, "/api/trading/start", nil, body, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trading %d symbols: %v\n", len(out.Started), out.Started)
			return nil
		},
	}
	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop every engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := newClient().do(cmd.Context(), http.MethodPost, "/api/trading/stop", nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "trading stopped")
			return nil
		},
	}
	engines := &cobra.Command{
		Use:   "engines",
		Short: "List live engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd, "/api/engines", nil)
		},
	}
	return []*cobra.Command{start, stop, engines}
}

func positionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List holdings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd, "/api/positions", nil)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh <code>",
		Short: "Re-read one holding from the broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out any
			path := "/api/positions/" + url.PathEscape(args[0]) + "/refresh"
			if err := newClient().do(cmd.Context(), http.MethodPost, path, nil, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	})
	return cmd
}

func symbolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "Manage per-symbol rule configs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd, "/api/symbols", nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <code>",
		Short: "Show one config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, "/api/symbols/"+url.PathEscape(args[0]), nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <code>",
		Short: "Remove one config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().do(cmd.Context(), http.MethodDelete, "/api/symbols/"+url.PathEscape(args[0]), nil, nil, nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Upload every config in a JSON or YAML symbol file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			configs, err := config.DecodeSymbols(data, config.IsYAMLPath(args[0]))
			if err != nil {
				return err
			}
			n, err := importSymbols(cmd.Context(), newClient(), configs)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d symbols\n", n, len(configs))
			return err
		},
	})

	var asYAML bool
	export := &cobra.Command{
		Use:   "export",
		Short: "Print stored configs in the symbol file layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Symbols []domain.SymbolConfig `json:"symbols"`
			}
			if err := newClient().do(cmd.Context(), http.MethodGet, "/api/symbols", nil, nil, &out); err != nil {
				return err
			}
			configs := make(map[string]domain.SymbolConfig, len(out.Symbols))
			for _, c := range out.Symbols {
				configs[c.Code] = c
			}
			data, err := config.EncodeSymbols(configs, asYAML)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	export.Flags().BoolVar(&asYAML, "yaml", false, "emit YAML instead of JSON")
	cmd.AddCommand(export)

	return cmd
}

// importSymbols uploads configs in code order and stops at the first
// rejected one.
func importSymbols(ctx context.Context, c *apiClient, configs map[string]domain.SymbolConfig) (int, error) {
	codes := make([]string, 0, len(configs))
	for code := range configs {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	for i, code := range codes {
		path := "/api/symbols/" + url.PathEscape(code)
		if err := c.do(ctx, http.MethodPut, path, nil, configs[code].Record(), nil); err != nil {
			return i, fmt.Errorf("symbol %s: %w", code, err)
		}
	}
	return len(codes), nil
}

func journalCmds() []*cobra.Command {
	var (
		code   string
		limit  int
		offset int
	)
	listQuery := func() url.Values {
		q := url.Values{}
		if code != "" {
			q.Set("code", code)
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}
		return q
	}

	orders := &cobra.Command{
		Use:   "orders",
		Short: "List journaled orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd, "/api/orders", listQuery())
		},
	}
	orders.Flags().StringVar(&code, "code", "", "only this symbol")
	orders.Flags().IntVar(&limit, "limit", 50, "page size")
	orders.Flags().IntVar(&offset, "offset", 0, "page offset")

	audit := &cobra.Command{
		Use:   "audit",
		Short: "List audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd, "/api/audit", listQuery())
		},
	}
	audit.Flags().IntVar(&limit, "limit", 50, "page size")
	audit.Flags().IntVar(&offset, "offset", 0, "page offset")

	return []*cobra.Command{orders, audit}
}

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the encrypted broker secret",
	}

	var (
		password string
		outPath  string
	)
	encrypt := &cobra.Command{
		Use:   "encrypt <secret>",
		Short: "Encrypt a broker API secret for broker.encrypted_secret_path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("EQBOT_BROKER_SECRET_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("a password is required (--password or EQBOT_BROKER_SECRET_PASSWORD)")
			}
			blob, err := crypto.EncryptSecret(args[0], password)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(append(blob, '\n'))
				return err
			}
			if err := os.WriteFile(outPath, blob, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	encrypt.Flags().StringVarP(&password, "password", "p", "", "encryption password")
	encrypt.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	cmd.AddCommand(encrypt)

	var inPath string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check that an encrypted secret file opens with the password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("EQBOT_BROKER_SECRET_PASSWORD")
			}
			if _, err := crypto.LoadSecret(crypto.SecretConfig{EncryptedPath: inPath, Password: password}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	verify.Flags().StringVarP(&password, "password", "p", "", "encryption password")
	verify.Flags().StringVarP(&inPath, "file", "f", "", "encrypted secret file")
	_ = verify.MarkFlagRequired("file")
	cmd.AddCommand(verify)

	return cmd
}
