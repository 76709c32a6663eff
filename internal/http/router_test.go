package httpapi

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casbot/pkg/platform/middleware/request"
	"casbot/pkg/testutil"
)

type echoToken struct{}

func (echoToken) Register(r chi.Router) {
	r.Post("/{token}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, chi.URLParam(r, "token"))
	})
}

func newTestRouter(ready bool) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "casbot_test_total", Help: "test"}))
	return NewRouter(Deps{
		Callback: echoToken{},
		Gatherer: reg,
		Ready:    func() bool { return ready },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestHealthz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		rec := testutil.DoRequest(newTestRouter(true), testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatus(t, rec, http.StatusOK)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("initializing", func(t *testing.T) {
		rec := testutil.DoRequest(newTestRouter(false), testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatus(t, rec, http.StatusServiceUnavailable)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "casbot_test_total")
}

func TestCallbackRouteAndRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/abc123", strings.NewReader(""))
	newTestRouter(true).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(request.HeaderRequestID))
}

func TestInboundRequestIDIsKept(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(request.HeaderRequestID, "portal-7")
	newTestRouter(true).ServeHTTP(rec, req)
	assert.Equal(t, "portal-7", rec.Header().Get(request.HeaderRequestID))
}

func TestOversizedBodyIsRejected(t *testing.T) {
	router := NewRouter(Deps{Callback: readAll{}})
	rec := httptest.NewRecorder()
	body := strings.NewReader(strings.Repeat("a", maxBodyBytes+1))
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tok", body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAccessLogOmitsToken(t *testing.T) {
	var buf bytes.Buffer
	router := NewRouter(Deps{
		Callback: echoToken{},
		Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
	})
	req := testutil.NewRequest(t, http.MethodPost, "/s3cr3t-token")
	req.RemoteAddr = "10.0.0.4:5555"

	testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusOK)
	line := buf.String()
	assert.Contains(t, line, "route=/{token}")
	assert.Contains(t, line, "client_ip=10.0.0.4")
	assert.NotContains(t, line, "s3cr3t-token")
}

type readAll struct{}

func (readAll) Register(r chi.Router) {
	r.Post("/{token}", func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}
