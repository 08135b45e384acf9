package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	pmerrors "pmat/internal/errors"
)

// ProtocolVersion is the MCP revision announced by initialize.
const ProtocolVersion = "2024-11-05"

// HandleLine answers one raw message. Notifications return nil.
func (s *Server) HandleLine(ctx context.Context, line []byte) *Message {
	line = bytes.TrimSpace(line)
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return NewErrorMessage(nil, RPCParseError, "parse error: "+err.Error(), nil)
	}
	if msg.Jsonrpc != Version || msg.Method == "" || !validID(msg.ID) {
		id := msg.ID
		if !validID(id) {
			id = nil
		}
		return NewErrorMessage(id, RPCInvalidRequest, "invalid request: expected jsonrpc 2.0 with a method", nil)
	}
	if msg.IsNotification() {
		s.handleNotification(&msg)
		return nil
	}
	return s.handleRequest(ctx, &msg)
}

func (s *Server) handleNotification(msg *Message) {
	switch msg.Method {
	case "notifications/initialized":
		s.logger.Info("client initialized")
	default:
		s.logger.Debug("ignoring notification", "method", msg.Method)
	}
}

func (s *Server) handleRequest(ctx context.Context, msg *Message) *Message {
	start := time.Now()
	var (
		result any
		err    error
	)
	switch msg.Method {
	case "initialize":
		result = s.initialize()
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(ctx, msg.Params)
	case "resources/list":
		result, err = s.listResources(ctx)
	case "resources/read":
		result, err = s.readResource(ctx, msg.Params)
	case "prompts/list":
		result = PromptList{Prompts: prompts}
	default:
		return NewErrorMessage(msg.ID, RPCMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method), nil)
	}
	s.logger.Debug("request handled", "method", msg.Method, "elapsed", time.Since(start), "error", err)
	if err != nil {
		return errorMessage(msg.ID, err)
	}
	return NewResultMessage(msg.ID, result)
}

// InitializeResult is the initialize response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ServerCapabilities lists the supported feature groups.
type ServerCapabilities struct {
	Tools     *ListCapability `json:"tools,omitempty"`
	Resources *ListCapability `json:"resources,omitempty"`
	Prompts   *ListCapability `json:"prompts,omitempty"`
}

// ListCapability describes one feature group.
type ListCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerInfo identifies the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (s *Server) initialize() *InitializeResult {
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools:     &ListCapability{},
			Resources: &ListCapability{},
			Prompts:   &ListCapability{},
		},
		ServerInfo: ServerInfo{Name: "pmat", Version: s.version},
	}
}

// decodeParams unmarshals params into v; absent params leave v unchanged.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(raw, nullID) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return pmerrors.Invalid(pmerrors.Problem{Field: "params", Message: err.Error()})
	}
	return nil
}
