// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/textguard/pkg/logger"
)

// DefaultMaxUploadBytes caps multipart bodies when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes int64 = 1 << 20

var validate = newValidator()

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	DetectDependencies
	PlagiarismDependencies
	HealthDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	detectHandler     *DetectHandler
	plagiarismHandler *PlagiarismHandler
	filesHandler      *FilesHandler
	metricsHandler    http.Handler

	corsOrigins []string
}

// Option applies a configuration option to the Server.
type Option func(*serverOptions)

type serverOptions struct {
	maxUploadBytes int64
	corsOrigins    []string
	logger         logger.Logger
}

// WithMaxUploadBytes caps the size of a /compare-files body.
func WithMaxUploadBytes(n int64) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxUploadBytes = n
		}
	}
}

// WithCORSOrigins sets the origins allowed to call the JSON routes.
// "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(o *serverOptions) {
		o.corsOrigins = append([]string(nil), origins...)
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{maxUploadBytes: DefaultMaxUploadBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Named("api")
	}

	return &Server{
		healthHandler:     NewHealthHandler(deps),
		statsHandler:      NewStatsHandler(deps),
		detectHandler:     NewDetectHandler(deps, o.logger),
		plagiarismHandler: NewPlagiarismHandler(deps, o.logger),
		filesHandler:      NewFilesHandler(deps, o.maxUploadBytes, o.logger),
		metricsHandler:    NewMetricsHandler(),
		corsOrigins:       o.corsOrigins,
	}
}

// Register attaches all HTTP routes to mux. JSON routes get CORS.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	withCORS := CORS(s.corsOrigins)

	mux.Handle("/detect-ai-text", withCORS(MetricsMiddleware(s.detectHandler.HandleDetect, "detect_ai_text")))
	mux.Handle("/score-ai-text", withCORS(MetricsMiddleware(s.detectHandler.HandleScore, "score_ai_text")))
	mux.Handle("/check-plagiarism", withCORS(MetricsMiddleware(s.plagiarismHandler.HandleCheck, "check_plagiarism")))
	mux.Handle("/compare-files", withCORS(MetricsMiddleware(s.filesHandler.HandleCompareFiles, "compare_files")))
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("/metrics", s.metricsHandler)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// fail writes err with its mapped status. Server errors are logged.
func fail(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", w.Header().Get(RequestIDHeader)),
			logger.Error(err),
		)
	}
	if status == http.StatusMethodNotAllowed {
		w.Header().Set("Allow", http.MethodPost)
	}
	writeError(w, status, err)
}

// decodeJSON reads one JSON document from the body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	if r.Method != http.MethodPost {
		return NewKind(op, ErrMethodNotAllowed)
	}
	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return WrapKind(op, ErrPayloadTooLarge, err)
		case errors.Is(err, io.EOF):
			return WrapKind(op, ErrBadRequest, errors.New("empty body"))
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return WrapKind(op, ErrMissingInput, fmt.Errorf("%s is required", verrs[0].Field()))
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
