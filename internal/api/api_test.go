package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	pmerrors "pmat/internal/errors"
	"pmat/internal/service"
	"pmat/internal/slogutil"
	"pmat/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	root := testutil.WriteProject(t, map[string]string{
		"src/main.rs":  testutil.RustMainSource,
		"src/utils.rs": testutil.RustUtilsSource,
	})
	svc, err := service.New(service.Options{
		Logger:   slogutil.NewDiscardLogger(),
		Registry: testutil.Registry(testutil.RustProject(t)...),
	})
	require.NoError(t, err)
	return NewServer(svc, opts), root
}

func serve(s *Server, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) pmerrors.ErrorCode {
	t.Helper()
	var body service.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, Options{})
	w := serve(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Contains(t, w.Body.String(), `"status": "healthy"`)
}

func TestRequestIDEchoed(t *testing.T) {
	s, _ := newServer(t, Options{})
	w := serve(s, http.MethodGet, "/health", "", http.Header{HeaderRequestID: {"abc-123"}})
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestGenerate(t *testing.T) {
	s, _ := newServer(t, Options{})
	w := serve(s, http.MethodPost, "/api/v1/generate",
		`{"template_uri":"template://makefile/rust/cli","parameters":{"project_name":"x"}}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var g struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Equal(t, "x/Makefile", g.Filename)
	assert.Contains(t, g.Content, "# Makefile for x")
}

func TestErrors(t *testing.T) {
	s, _ := newServer(t, Options{})

	w := serve(s, http.MethodGet, "/api/v1/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, pmerrors.NotFound, errorCode(t, w))

	w = serve(s, http.MethodGet, "/api/v1/generate", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, pmerrors.ProtocolError, errorCode(t, w))

	w = serve(s, http.MethodPost, "/api/v1/generate", `{"template_uri":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, pmerrors.InvalidInput, errorCode(t, w))
}

func TestAnalyze(t *testing.T) {
	s, root := newServer(t, Options{})
	body, err := json.Marshal(map[string]any{"project_path": root})
	require.NoError(t, err)

	w := serve(s, http.MethodPost, "/api/v1/analyze/complexity", string(body), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"analysis_type": "complexity"`)

	w = serve(s, http.MethodPost, "/api/v1/analyze/tarot", string(body), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplatesQuery(t *testing.T) {
	s, _ := newServer(t, Options{})
	w := serve(s, http.MethodGet, "/api/v1/templates?toolchain=deno", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "template://makefile/deno/cli")
	assert.NotContains(t, w.Body.String(), "template://makefile/rust/cli")
}

func TestCORS(t *testing.T) {
	s, _ := newServer(t, Options{CORS: true})
	w := serve(s, http.MethodOptions, "/api/v1/generate", "", http.Header{
		"Origin":                        {"http://localhost:3000"},
		"Access-Control-Request-Method": {http.MethodPost},
	})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	plain, _ := newServer(t, Options{})
	w = serve(plain, http.MethodGet, "/health", "", http.Header{"Origin": {"http://localhost:3000"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestConnectionLimiter(t *testing.T) {
	l := NewConnectionLimiter(1)
	entered := make(chan struct{})
	release := make(chan struct{})
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	first := httptest.NewRecorder()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil))
	}()
	<-entered

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, second.Code)
	assert.Equal(t, "5", second.Header().Get("Retry-After"))
	assert.Equal(t, pmerrors.ResourceLimit, errorCode(t, second))
	assert.Equal(t, int64(1), l.Stats().InFlight)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, LimiterStats{InFlight: 0, Max: 1, TotalShed: 1}, l.Stats())
}

func TestChiPattern(t *testing.T) {
	assert.Equal(t, "/api/v1/analyze/*", chiPattern("/api/v1/analyze/{rest}"))
	assert.Equal(t, "/health", chiPattern("/health"))
}
