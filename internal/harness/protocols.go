package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	pmerrors "pmat/internal/errors"
	"pmat/internal/mcp"
	"pmat/internal/service"
	"pmat/internal/version"
)

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// Direct calls the service in process.
type Direct struct {
	Service *service.Service
}

// Name implements Protocol.
func (Direct) Name() string { return "direct" }

// Do implements Protocol.
func (d Direct) Do(ctx context.Context, c Case) (Outcome, error) {
	body, err := encodeBody(c.Body)
	if err != nil {
		return Outcome{}, err
	}
	resp := d.Service.Handle(ctx, &service.Request{
		Method:     c.Method,
		Path:       c.Path,
		Body:       body,
		Extensions: map[string]any{service.ExtProtocol: "direct"},
	})
	return FromResponse(resp), nil
}

// HTTP sends cases to a running API server.
type HTTP struct {
	BaseURL string
	Client  *http.Client
}

// Name implements Protocol.
func (HTTP) Name() string { return "http" }

// Do implements Protocol.
func (h HTTP) Do(ctx context.Context, c Case) (Outcome, error) {
	body, err := encodeBody(c.Body)
	if err != nil {
		return Outcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, c.Method, strings.TrimSuffix(h.BaseURL, "/")+c.Path, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", service.ContentJSON)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, err
	}
	return FromResponse(&service.Response{
		Status:  resp.StatusCode,
		Headers: map[string]string{"Content-Type": resp.Header.Get("Content-Type")},
		Body:    data,
	}), nil
}

// MCP sends cases as tools/call messages to a JSON-RPC server.
type MCP struct {
	Server *mcp.Server

	next atomic.Int64
}

// Name implements Protocol.
func (*MCP) Name() string { return "mcp" }

// Do implements Protocol. The JSON-RPC envelope is removed before the
// result or error is read.
func (m *MCP) Do(ctx context.Context, c Case) (Outcome, error) {
	body, err := encodeBody(c.Body)
	if err != nil {
		return Outcome{}, err
	}
	name, args, err := mcp.ToolCall(c.Method, c.Path, body)
	if err != nil {
		return FromError(err), nil
	}
	line, err := json.Marshal(map[string]any{
		"jsonrpc": mcp.Version,
		"id":      m.next.Add(1),
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		return Outcome{}, err
	}
	msg := m.Server.HandleLine(ctx, line)
	if msg == nil {
		return Outcome{}, fmt.Errorf("no response to tools/call %s", name)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return Outcome{}, err
	}
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		return Outcome{}, err
	}
	env = Strip(env, "jsonrpc", "id").(map[string]any)

	if e, ok := env["error"].(map[string]any); ok {
		code := pmerrors.InternalError
		if data, ok := e["data"].(map[string]any); ok {
			if s, ok := data["code"].(string); ok {
				code = pmerrors.ErrorCode(s)
			}
		}
		return Outcome{Code: code}, nil
	}
	result, _ := env["result"].(map[string]any)
	if sc, ok := result["structuredContent"]; ok {
		return Outcome{OK: true, Body: sc}, nil
	}
	content, _ := result["content"].([]any)
	if len(content) == 0 {
		return Outcome{OK: true}, nil
	}
	first, _ := content[0].(map[string]any)
	text, _ := first["text"].(string)
	return Outcome{OK: true, Body: DecodeBody([]byte(text))}, nil
}
