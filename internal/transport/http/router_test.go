package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/platform/metrics"
	"courier/internal/projection"
	"courier/pkg/testutil"
)

const token = "s3cret"

type fakeRunner struct {
	results map[string]projection.Result
	errs    map[string]error
	ran     []string
}

func (f *fakeRunner) RunNow(_ context.Context, name string) (projection.Result, error) {
	res, ok := f.results[name]
	if !ok {
		return projection.Result{}, projection.ErrUnknownProjector
	}
	f.ran = append(f.ran, name)
	return res, f.errs[name]
}

func (f *fakeRunner) Names() []string {
	return []string{"deliveries", "payments"}
}

func newTestRouter(runner ProjectionRunner, opts ...Option) http.Handler {
	reg := prometheus.NewRegistry()
	metrics.New(reg).IncConflict("delivery")
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewRouter(NewHandler(runner, opts...), reg, token)
}

func do(t *testing.T, h http.Handler, method, path string, withToken bool) *httptest.ResponseRecorder {
	t.Helper()
	tok := ""
	if withToken {
		tok = token
	}
	return testutil.DoRequest(h, testutil.NewAdminRequest(method, path, tok))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	return testutil.UnmarshalResponse[map[string]any](t, w)
}

func TestRunProjector(t *testing.T) {
	runner := &fakeRunner{
		results: map[string]projection.Result{
			"deliveries": {Projected: 3},
			"payments":   {Projected: 1, Failed: 1},
		},
		errs: map[string]error{
			"payments": errors.Join(errors.New("payment p-9: corrupt event")),
		},
	}
	router := newTestRouter(runner)

	t.Run("full success", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/admin/projections/deliveries", true)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "deliveries", body["projector"])
		assert.EqualValues(t, 3, body["projected"])
		assert.EqualValues(t, 0, body["failed"])
		assert.NotContains(t, body, "errors")
	})

	t.Run("partial failure reports skipped groups", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/admin/projections/payments", true)
		require.Equal(t, http.StatusMultiStatus, w.Code)
		body := decode(t, w)
		assert.EqualValues(t, 1, body["failed"])
		assert.Equal(t, []any{"payment p-9: corrupt event"}, body["errors"])
	})

	t.Run("unknown projector", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/admin/projections/orders", true)
		testutil.AssertStatusAndError(t, w, http.StatusNotFound, "not_found")
	})

	t.Run("missing admin token", func(t *testing.T) {
		before := len(runner.ran)
		w := do(t, router, http.MethodPost, "/admin/projections/deliveries", false)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Len(t, runner.ran, before)
	})

	t.Run("list projectors", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/admin/projections/", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []any{"deliveries", "payments"}, decode(t, w)["projectors"])
	})
}

func TestRunProjectorStoreFailure(t *testing.T) {
	runner := &fakeRunner{
		results: map[string]projection.Result{"deliveries": {}},
		errs:    map[string]error{"deliveries": errors.New("store unavailable")},
	}
	w := do(t, newTestRouter(runner), http.MethodPost, "/admin/projections/deliveries", true)
	testutil.AssertStatusAndError(t, w, http.StatusServiceUnavailable, "unavailable")
}

func TestProbes(t *testing.T) {
	runner := &fakeRunner{}

	t.Run("liveness", func(t *testing.T) {
		w := do(t, newTestRouter(runner), http.MethodGet, "/healthz", false)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ready when all checks pass", func(t *testing.T) {
		router := newTestRouter(runner,
			WithHealthCheck("postgres", func(context.Context) error { return nil }),
		)
		w := do(t, router, http.MethodGet, "/readyz", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{"postgres": "ok"}, decode(t, w)["checks"])
	})

	t.Run("not ready when a check fails", func(t *testing.T) {
		router := newTestRouter(runner,
			WithHealthCheck("postgres", func(context.Context) error { return nil }),
			WithHealthCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") }),
		)
		w := do(t, router, http.MethodGet, "/readyz", false)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, map[string]any{"postgres": "ok", "redis": "unavailable"}, decode(t, w)["checks"])
	})

	t.Run("metrics", func(t *testing.T) {
		w := do(t, newTestRouter(runner), http.MethodGet, "/metrics", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "courier_append_conflicts_total")
	})
}
