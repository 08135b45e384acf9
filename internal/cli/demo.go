package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pmat/internal/api"
	pmerrors "pmat/internal/errors"
	"pmat/internal/harness"
	"pmat/internal/mcp"
	"pmat/internal/report"
	"pmat/internal/service"
)

const (
	protocolCLI  = "cli"
	protocolHTTP = "http"
	protocolMCP  = "mcp"
	protocolAll  = "all"
)

func newDemoCmd(app *App) *cobra.Command {
	var (
		protocol    string
		port        int
		projectPath string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the same requests through every adapter and compare the answers",
		Long: `Send a fixed set of template and analysis requests through the service
directly and through the chosen adapters, then report every pair of
adapters that answered differently. Exits 1 on any mismatch.`,
		Example: "  pmat demo --protocol all\n  pmat demo --protocol http --port 9000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatTable, formatJSON); err != nil {
				return err
			}
			if err := checkChoice("protocol", protocol, protocolCLI, protocolHTTP, protocolMCP, protocolAll); err != nil {
				return err
			}
			svc, err := app.service(false)
			if err != nil {
				return err
			}
			root := projectPath
			if root == "" {
				root = app.root
			}

			ctx := cmd.Context()
			protocols := []harness.Protocol{harness.Direct{Service: svc}}
			if protocol == protocolCLI || protocol == protocolAll {
				protocols = append(protocols, &cliProtocol{svc: svc, lookupEnv: app.LookupEnv})
			}
			if protocol == protocolHTTP || protocol == protocolAll {
				p, stop, err := startHTTP(app, svc, port)
				if err != nil {
					return err
				}
				defer stop()
				protocols = append(protocols, p)
			}
			if protocol == protocolMCP || protocol == protocolAll {
				protocols = append(protocols, &harness.MCP{Server: mcp.NewServer(svc, strings.NewReader(""), io.Discard, app.logger)})
			}

			h := harness.New(protocols, harness.WithLogger(app.logger))
			reports, err := h.RunAll(ctx, harness.Scenarios(root))
			if err != nil {
				return pmerrors.New(pmerrors.InternalError, "run scenarios", err)
			}
			if err := writeDemo(cmd.OutOrStdout(), format, reports); err != nil {
				return err
			}
			var mismatches int
			for _, r := range reports {
				mismatches += len(r.Mismatches)
			}
			if mismatches > 0 {
				return &resultError{code: pmerrors.ExitFailure, msg: fmt.Sprintf("%d protocol mismatch(es)", mismatches)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", protocolAll, "Adapter to compare against the service: cli, http, mcp or all")
	cmd.Flags().IntVar(&port, "port", 0, "Port for the HTTP adapter (default: any free port)")
	cmd.Flags().StringVar(&projectPath, "project-path", "", "Project the analysis requests run against")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table or json")
	return cmd
}

// startHTTP serves svc on 127.0.0.1:port for the duration of the demo.
func startHTTP(app *App, svc *service.Service, port int) (harness.Protocol, func(), error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, nil, pmerrors.New(pmerrors.InternalError, "listen", err)
	}
	server := api.NewServer(svc, api.Options{Logger: app.logger})
	done := make(chan error, 1)
	go func() { done <- server.Serve(ln) }()

	client := &http.Client{}
	stop := func() {
		client.CloseIdleConnections()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			app.logger.Warn("stop demo server", "error", err)
		}
		<-done
	}
	return harness.HTTP{BaseURL: "http://" + ln.Addr().String(), Client: client}, stop, nil
}

func writeDemo(w io.Writer, format string, reports []*harness.Report) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	t := &report.Table{Headers: []string{"Test", "Protocols", "Result"}}
	var diffs []harness.Mismatch
	for _, r := range reports {
		result := "equivalent"
		if !r.Equivalent() {
			result = fmt.Sprintf("%d mismatch(es)", len(r.Mismatches))
			diffs = append(diffs, r.Mismatches...)
		}
		t.Add(r.Test, len(r.Outcomes), result)
	}
	if err := t.WriteText(w); err != nil {
		return err
	}
	for _, m := range diffs {
		fmt.Fprintf(w, "\n%s: %s vs %s\n%s", m.Test, m.Protocols[0], m.Protocols[1], m.Difference)
	}
	return nil
}

// cliProtocol runs each case's command line in process against a shared
// service and reads the printed result.
type cliProtocol struct {
	svc       *service.Service
	lookupEnv func(string) (string, bool)
}

func (*cliProtocol) Name() string { return protocolCLI }

func (*cliProtocol) Skip(c harness.Case) bool { return len(c.CLI) == 0 }

func (p *cliProtocol) Do(ctx context.Context, c harness.Case) (harness.Outcome, error) {
	var stdout bytes.Buffer
	app := &App{
		Stdin:     strings.NewReader(""),
		Stdout:    &stdout,
		Stderr:    io.Discard,
		LookupEnv: p.lookupEnv,
		Service:   p.svc,
	}
	err := run(ctx, app, c.CLI)
	var res *resultError
	switch {
	case err == nil, errors.As(err, &res):
		return harness.Outcome{OK: true, Body: harness.DecodeBody(stdout.Bytes())}, nil
	case isUsage(err):
		return harness.Outcome{}, fmt.Errorf("command line %q: %w", c.CLI, err)
	default:
		return harness.FromError(err), nil
	}
}
