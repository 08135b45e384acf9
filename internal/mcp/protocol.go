package mcp

import (
	"bytes"
	"encoding/json"

	pmerrors "pmat/internal/errors"
)

// Version is the JSON-RPC version every message carries.
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	RPCParseError     = pmerrors.RPCParseError
	RPCInvalidRequest = pmerrors.RPCInvalidRequest
	RPCMethodNotFound = pmerrors.RPCMethodNotFound
	RPCInvalidParams  = pmerrors.RPCInvalidParams
	RPCInternalError  = pmerrors.RPCInternalError
)

// Message represents a JSON-RPC 2.0 message. ID is kept raw so responses
// echo it byte for byte.
type Message struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

var nullID = json.RawMessage("null")

// NewErrorMessage creates a new error response message
func NewErrorMessage(id json.RawMessage, code int, message string, data any) *Message {
	if len(id) == 0 {
		id = nullID
	}
	return &Message{
		Jsonrpc: Version,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
}

// NewResultMessage creates a new result response message
func NewResultMessage(id json.RawMessage, result any) *Message {
	return &Message{Jsonrpc: Version, ID: id, Result: result}
}

// errorMessage maps err to a JSON-RPC error through its code.
func errorMessage(id json.RawMessage, err error) *Message {
	code := pmerrors.CodeOf(err)
	msg := err.Error()
	var data any
	if pe, ok := pmerrors.As(err); ok {
		msg = pe.Message
		data = errorData{Code: pe.Code, Problems: pe.Problems, Details: pe.Details}
	}
	return NewErrorMessage(id, pmerrors.JSONRPCCode(code), msg, data)
}

// errorData carries the typed error alongside the numeric code.
type errorData struct {
	Code     pmerrors.ErrorCode `json:"code"`
	Problems []pmerrors.Problem `json:"problems,omitempty"`
	Details  map[string]any     `json:"details,omitempty"`
}

// IsNotification reports a request without an id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && (len(m.ID) == 0 || bytes.Equal(m.ID, nullID))
}

// validID accepts the id forms JSON-RPC allows: string, number or null.
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch id[0] {
	case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'n':
		return true
	}
	return false
}
