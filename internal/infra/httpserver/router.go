package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appsurveys "github.com/bryanwahyu/survey-intake/internal/application/surveys"
	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
	"github.com/bryanwahyu/survey-intake/internal/middleware"
)

type RateLimit struct {
	Capacity        int
	RefillPerSecond int
}

type Options struct {
	Version        string
	AllowedOrigins []string
	AdminKeys      map[string]string
	RateLimit      RateLimit
	Metrics        *middleware.Metrics
	Health         map[string]middleware.HealthChecker
	EmailEnabled   bool
}

type Router struct {
	svc  *appsurveys.Service
	log  *zap.Logger
	opts Options
}

// NewRouter builds the HTTP surface. ctx bounds background goroutines
// started by the middleware.
func NewRouter(ctx context.Context, svc *appsurveys.Service, log *zap.Logger, opts Options) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	r := &Router{svc: svc, log: log, opts: opts}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.LoggingMiddleware(log))
	mux.Use(chimw.Recoverer)
	mux.Use(opts.Metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	mux.Get("/", r.handleRoot)
	mux.Get("/health", middleware.HealthHandler(opts.Version, opts.Health))
	mux.Get("/metrics", opts.Metrics.Handler)
	mux.Get("/stats", r.wrap(r.handleStats))

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.AdminKeys))
		rt.Get("/download_csv", r.wrap(r.handleDownload))
	})

	mux.Group(func(rt chi.Router) {
		if opts.RateLimit.Capacity > 0 {
			rt.Use(middleware.RateLimitMiddleware(ctx, opts.RateLimit.Capacity, opts.RateLimit.RefillPerSecond))
		}
		rt.Post("/submit_survey", r.wrap(r.handleSubmit))
	})

	mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var ve *domain.ValidationError
		var pe *domain.PersistenceError
		switch {
		case errors.As(err, &ve):
			writeJSON(w, http.StatusBadRequest, errorBody(ve.Error()))
		case errors.Is(err, domain.ErrStoreClosed):
			writeJSON(w, http.StatusServiceUnavailable, errorBody("service shutting down"))
		case errors.As(err, &pe):
			r.log.Error("persistence failure", zap.String("path", req.URL.Path), zap.Error(err))
			body := errorBody("response could not be stored, please retry")
			body["retryable"] = true
			writeJSON(w, http.StatusInternalServerError, body)
		default:
			r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
	}
}

// GET /
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	name := r.svc.Schema.Name()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        fmt.Sprintf("%s survey backend running", name),
		"version":       r.opts.Version,
		"questions":     len(r.svc.Schema.Questions()),
		"notifications": r.opts.EmailEnabled,
		"endpoints": map[string]string{
			"submit":   "/submit_survey (POST)",
			"stats":    "/stats (GET)",
			"download": "/download_csv (GET)",
			"health":   "/health (GET)",
			"metrics":  "/metrics (GET)",
		},
	})
}

// POST /submit_survey
// Body: JSON {"participant_id": "...", "responses": {"Q1": 5}} or a form with Q1=5.
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	cmd, err := decodeSubmit(w, req)
	if err != nil {
		r.opts.Metrics.IncrementSubmissionsRejected()
		return err
	}

	res, err := r.svc.Submit(req.Context(), cmd)
	if err != nil {
		if domain.IsValidation(err) {
			r.opts.Metrics.IncrementSubmissionsRejected()
		} else {
			r.opts.Metrics.IncrementSubmissionsFailed()
		}
		return err
	}
	r.opts.Metrics.IncrementSubmissionsAccepted()

	body := map[string]any{
		"status":               "success",
		"message":              "Survey response saved successfully",
		"submission_id":        res.ID,
		"submission_timestamp": res.SubmittedAt,
		"scores":               res.Scores,
	}
	if len(res.Ignored) > 0 {
		body["ignored"] = res.Ignored
	}
	writeJSON(w, http.StatusOK, body)
	return nil
}

// GET /stats
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	st, err := r.svc.Stats(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, st)
	return nil
}

// GET /download_csv
func (r *Router) handleDownload(w http.ResponseWriter, req *http.Request) error {
	filename := fmt.Sprintf("survey_data_%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Cache-Control", "no-store")

	n, err := r.svc.Export(req.Context(), w)
	if err != nil && n == 0 {
		w.Header().Del("Content-Disposition")
		return err
	}
	if err != nil {
		// headers already sent
		r.log.Error("csv download interrupted", zap.Int64("bytes", n), zap.Error(err))
	}
	return nil
}

func errorBody(msg string) map[string]any {
	return map[string]any{"status": "error", "message": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
