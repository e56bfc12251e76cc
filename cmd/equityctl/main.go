// Command equityctl drives a running equitybot daemon over its HTTP API and
// prepares encrypted broker secrets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	addr    string
	apiKey  string
	timeout time.Duration
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "equityctl",
		Short:         "Control an equitybot daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&addr, "addr", "a", envOr("EQBOT_CTL_ADDR", "http://127.0.0.1:8000"), "daemon base URL")
	root.PersistentFlags().StringVarP(&apiKey, "api-key", "k", os.Getenv("EQBOT_SERVER_API_KEY"), "API key (defaults to EQBOT_SERVER_API_KEY)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(statusCmd())
	root.AddCommand(tradingCmds()...)
	root.AddCommand(positionsCmd())
	root.AddCommand(symbolsCmd())
	root.AddCommand(journalCmds()...)
	root.AddCommand(secretCmd())
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *apiClient {
	return newAPIClient(addr, apiKey, timeout)
}
