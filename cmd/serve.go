package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arahq/ara/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve exposes the assistant over HTTP: chat (sync and SSE streaming),
thread listing, document ingestion and health probes. The server shuts
down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to config listen_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.ListenAddr
	}

	server := api.NewServer(api.Config{
		Engine:  a.engine,
		Threads: a.threads,
		Ingest:  a.knowledge,
		Pool:    a.pool,
		Logger:  a.logger,
	})
	return server.Run(ctx, addr)
}
