package errors

import (
	stderrors "errors"
	"net/http"
)

// HTTPStatus maps an error code to the HTTP status returned by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case InvalidInput, ParseError, ProtocolError:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Timeout:
		return http.StatusRequestTimeout
	case Cancelled:
		return 499
	case ResourceLimit:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// JSON-RPC 2.0 error codes.
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603
)

// Application error range reserved by JSON-RPC for server errors.
const (
	RPCServerErrorMin = -32099
	RPCServerErrorMax = -32000
)

// JSONRPCCode maps an error code to a JSON-RPC error code.
func JSONRPCCode(code ErrorCode) int {
	switch code {
	case InvalidInput:
		return RPCInvalidParams
	case ProtocolError:
		return RPCInvalidRequest
	case NotFound:
		return -32004
	case Timeout:
		return -32001
	case Cancelled:
		return -32002
	case ParseError:
		return -32003
	case ResourceLimit:
		return -32005
	case CacheIO:
		return -32006
	default:
		return RPCServerErrorMax
	}
}

// CLI exit codes.
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitUsage           = 2
	ExitInvalidInput    = 3
	ExitNotFound        = 4
	ExitTimeout         = 5
	ExitQualityGateFail = 6
)

// ExitCoder is implemented by errors that carry their own exit status,
// such as a failed quality gate.
type ExitCoder interface {
	ExitCode() int
}

// ExitCode maps an error to the CLI exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ec ExitCoder
	if stderrors.As(err, &ec) {
		return ec.ExitCode()
	}
	switch CodeOf(err) {
	case InvalidInput:
		return ExitInvalidInput
	case NotFound:
		return ExitNotFound
	case Timeout, Cancelled:
		return ExitTimeout
	default:
		return ExitFailure
	}
}
