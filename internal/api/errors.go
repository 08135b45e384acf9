package api

import (
	"io"
	"net/http"
	"strconv"

	pmerrors "pmat/internal/errors"
	"pmat/internal/service"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 10 << 20

// ToRequest converts an HTTP request into a service request.
func ToRequest(r *http.Request) (*service.Request, error) {
	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
		if err != nil {
			return nil, pmerrors.Limit(r.URL.Path, "request body bytes", int64(len(data)), MaxBodyBytes)
		}
		body = data
	}
	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	req := &service.Request{
		Method:     r.Method,
		Path:       path,
		Body:       body,
		Extensions: map[string]any{service.ExtProtocol: "http"},
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Headers = map[string]string{"Content-Type": ct}
	}
	if id := GetRequestID(r.Context()); id != "" {
		req.Extensions[service.ExtRequestID] = id
	}
	return req, nil
}

// WriteResponse writes a service response.
func WriteResponse(w http.ResponseWriter, resp *service.Response) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// WriteError writes err as an error body with the given status, or the
// status mapped from its code when status is zero.
func WriteError(w http.ResponseWriter, err error, status int) {
	WriteResponse(w, service.ErrorResponse(err, status))
}
