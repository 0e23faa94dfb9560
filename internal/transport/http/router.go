// Package httptransport serves the operational HTTP surface: health probes,
// Prometheus metrics and on-demand projector runs. It carries no product
// routes.
package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courier/internal/projection"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/httputil"
	"courier/pkg/platform/middleware/admin"
	"courier/pkg/platform/middleware/requesttime"
	"courier/pkg/platform/sentinel"
)

// ProjectionRunner runs projectors by name.
type ProjectionRunner interface {
	RunNow(ctx context.Context, name string) (projection.Result, error)
	Names() []string
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler holds the ops endpoints' collaborators.
type Handler struct {
	runner       ProjectionRunner
	checks       map[string]HealthCheck
	checkTimeout time.Duration
	logger       *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithHealthCheck adds a dependency to the readiness probe.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

func NewHandler(runner ProjectionRunner, opts ...Option) *Handler {
	h := &Handler{
		runner:       runner,
		checks:       map[string]HealthCheck{},
		checkTimeout: 2 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter wires the ops endpoints. Projector runs require adminToken.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, adminToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", h.handleLiveness)
	r.Get("/readyz", h.handleReadiness)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/admin/projections", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, h.logger))
		r.Get("/", h.handleListProjectors)
		r.Post("/{name}", h.handleRunProjector)
	})
	return r
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	httputil.WriteJSON(w, status, map[string]any{"checks": results})
}

func (h *Handler) handleListProjectors(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"projectors": h.runner.Names()})
}

type runResponse struct {
	Projector string   `json:"projector"`
	Projected int      `json:"projected"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// handleRunProjector returns 200 when every group was projected and 207
// when some groups were skipped; the run itself still committed the rest.
func (h *Handler) handleRunProjector(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := h.runner.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "unknown projector "+name))
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeTimeout, "projector run interrupted"))
		return
	case err != nil && res.Projected == 0 && res.Failed == 0:
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "projector run failed"))
		return
	}

	resp := runResponse{Projector: name, Projected: res.Projected, Failed: res.Failed}
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
		resp.Errors = splitJoined(err)
	}
	httputil.WriteJSON(w, status, resp)
}

func splitJoined(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
