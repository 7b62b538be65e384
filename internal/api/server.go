// Package api exposes compare, sort, merge and deploy over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/internal/plan"
	"github.com/pgcompose/pgcompose/internal/source"
	"github.com/pgcompose/pgcompose/ir"
)

// Config configures the handler.
type Config struct {
	// AllowedSources lists the source kinds requests may use. Files and
	// directories name paths on the server, so they are off by default.
	AllowedSources []source.Kind
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
	// RequestTimeout bounds each request, including source loading.
	RequestTimeout time.Duration
	// Source options applied to every load.
	Source source.Options
}

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// DefaultAllowedSources are the source kinds enabled when Config leaves
// AllowedSources empty.
var DefaultAllowedSources = []source.Kind{source.KindText, source.KindGit, source.KindDatabase}

type server struct {
	cfg Config
}

// NewHandler builds the router.
func NewHandler(cfg Config) http.Handler {
	if len(cfg.AllowedSources) == 0 {
		cfg.AllowedSources = DefaultAllowedSources
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Endpoint not found", Path: r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed", Path: r.URL.Path})
	})

	r.Get("/health", s.health)
	r.Post("/compare", s.compare)
	r.Post("/sort", s.sort)
	r.Post("/merge", s.merge)
	r.Post("/deploy", s.deploy)
	return r
}

// requestLogger logs each request through the process logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Get().Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Path   string `json:"path,omitempty"`
}

// requestError is a client mistake reported with status 400.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// writeError maps the error taxonomy to status codes.
func writeError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	var refErr *ir.MalformedReferenceError
	var unsupported *plan.UnsupportedChangeError
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request", Detail: err.Error()})
	case errors.As(err, &refErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Invalid schema", Detail: err.Error()})
	case errors.As(err, &unsupported):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Unsupported change", Detail: err.Error()})
	default:
		// The detail can hold server paths and git output; it is logged only.
		logger.Get().Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func (s *server) checkSource(spec string) error {
	if spec == "" {
		return badRequest("source must not be empty")
	}
	kind := source.Detect(spec)
	if !slices.Contains(s.cfg.AllowedSources, kind) {
		return badRequest("source kind " + string(kind) + " is not allowed")
	}
	if kind == source.KindGit && !s.allowsServerPaths() {
		loc, err := source.ParseGitLocation(spec)
		if err != nil {
			return badRequest(err.Error())
		}
		if loc.Local() {
			return badRequest("git repositories on the server filesystem are not allowed")
		}
	}
	return nil
}

// allowsServerPaths reports whether requests may name paths on the server.
func (s *server) allowsServerPaths() bool {
	return slices.Contains(s.cfg.AllowedSources, source.KindFile) ||
		slices.Contains(s.cfg.AllowedSources, source.KindDir)
}
