package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pmat/internal/api"
	pmerrors "pmat/internal/errors"
	"pmat/internal/mcp"
	"pmat/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *App) *cobra.Command {
	var (
		host    string
		port    int
		cors    bool
		origins []string
		stdio   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the API over HTTP, or JSON-RPC on stdio with --stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if stdio {
				return app.serveStdio(cmd.Context())
			}
			svc, err := app.service(false)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if !f.Changed("host") {
				host = app.cfg.Server.Host
			}
			if !f.Changed("port") {
				port = app.cfg.Server.Port
			}
			if !f.Changed("cors-origin") {
				origins = app.cfg.Server.CorsOrigins
			}
			addr := net.JoinHostPort(host, strconv.Itoa(port))
			server := api.NewServer(svc, api.Options{
				Addr:           addr,
				Logger:         app.logger,
				CORS:           cors,
				CorsOrigins:    origins,
				MaxConnections: app.cfg.Server.MaxConnections,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "pmat HTTP API listening on http://%s\n", addr)
			return serveUntilDone(cmd.Context(), app, server.Start, server.Shutdown)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host to bind (default: server.host)")
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on (default: server.port)")
	cmd.Flags().BoolVar(&cors, "cors", false, "Send CORS headers")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "Allowed CORS origins (default: server.corsOrigins, empty allows any)")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve JSON-RPC on stdin/stdout instead of HTTP")
	return cmd
}

// serveUntilDone runs start until it fails or ctx is cancelled, then
// shuts down within shutdownTimeout.
func serveUntilDone(ctx context.Context, app *App, start func() error, shutdown func(context.Context) error) error {
	serverErr := make(chan error, 1)
	go func() { serverErr <- start() }()

	select {
	case err := <-serverErr:
		if err != nil {
			app.logger.Error("server error", "error", err)
			return pmerrors.New(pmerrors.InternalError, "http server", err)
		}
		return nil
	case <-ctx.Done():
		app.logger.Info("received shutdown signal")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			app.logger.Error("error during shutdown", "error", err)
			return pmerrors.New(pmerrors.InternalError, "http shutdown", err)
		}
		<-serverErr
		app.logger.Info("server stopped gracefully")
		return nil
	}
}

func newMCPCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve JSON-RPC 2.0 tools on stdin/stdout",
		Long: `Serve the analysis and template tools as line-delimited JSON-RPC 2.0
on stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.serveStdio(cmd.Context())
		},
	}
}

func (a *App) serveStdio(ctx context.Context) error {
	svc, err := a.service(false)
	if err != nil {
		return err
	}
	err = mcp.NewServer(svc, a.Stdin, a.Stdout, a.logger).Run(ctx)
	if err == nil || ctx.Err() != nil {
		return nil
	}
	return pmerrors.New(pmerrors.InternalError, "json-rpc server", err)
}

func newVersionCmd(app *App) *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if short {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Info())
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return err
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version")
	return cmd
}
