// Package mcp serves the analysis service as line-delimited JSON-RPC 2.0
// over stdio. Tools forward to the same service routes the HTTP API uses.
package mcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"pmat/internal/service"
	"pmat/internal/slogutil"
	"pmat/internal/version"
)

// Server represents the JSON-RPC server
type Server struct {
	svc     *service.Service
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
	logger  *slog.Logger
	version string
	tools   map[string]Tool
	order   []string

	writeMu sync.Mutex
}

// NewServer creates a server reading requests from in and writing
// responses to out.
func NewServer(svc *service.Service, in io.Reader, out io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	s := &Server{
		svc:     svc,
		in:      in,
		out:     out,
		logger:  logger,
		version: version.Version,
		tools:   map[string]Tool{},
	}
	for _, t := range toolDefinitions() {
		s.tools[t.Name] = t
		s.order = append(s.order, t.Name)
	}
	return s
}

// Run serves requests until the input closes or ctx is done. Requests are
// answered in arrival order.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("JSON-RPC server started", "tools", len(s.tools))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := s.readLine()
		if errors.Is(err, io.EOF) {
			s.logger.Info("JSON-RPC input closed")
			return nil
		}
		if err != nil {
			// Oversized lines are fatal for the scanner; report and stop.
			_ = s.writeMessage(NewErrorMessage(nil, RPCParseError, err.Error(), nil))
			return err
		}
		if resp := s.HandleLine(ctx, line); resp != nil {
			if err := s.writeMessage(resp); err != nil {
				return err
			}
		}
	}
}
