package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/muhammadolammi/resumecheck/internal/database"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	SessionCookie  string   `yaml:"session_cookie"`
}

// ReportReader serves the report history endpoints.
type ReportReader interface {
	GetAnalysisForUser(ctx context.Context, arg database.GetAnalysisForUserParams) (database.Analysis, error)
	ListAnalysesByUser(ctx context.Context, arg database.ListAnalysesByUserParams) ([]database.Analysis, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}

type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Check(ctx context.Context) error { return f(ctx) }

type apiConfig struct {
	Pipeline *Pipeline
	Reports  ReportReader
	Health   map[string]HealthChecker
	Logger   *slog.Logger
	Server   ServerConfig
}

func NewRouter(ctx context.Context, cfg apiConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Server.SessionCookie == "" {
		cfg.Server.SessionCookie = "session"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(cfg.Logger))
	r.Use(middleware.Recoverer)
	// credentialed CORS needs explicit origins; without them cross-origin calls stay disabled
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           600,
		}))
	}

	r.Get("/healthz", cfg.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
		r.Post("/analyze", cfg.handleAnalyze)
		r.Get("/analyses", cfg.handleListAnalyses)
		r.Get("/analyses/{id}", cfg.handleGetAnalysis)
	})
	return r
}

// POST /api/analyze
// multipart: resume (file), job_description (text)
func (cfg *apiConfig) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	principal, err := cfg.Pipeline.Authorize(r.Context(), cfg.sessionToken(r))
	if err != nil {
		writePipelineError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, cfg.Server.MaxUploadBytes)
	file, jobDescription, err := readAnalyzeForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// the pipeline runs to completion even if the client goes away
	ctx := context.WithoutCancel(r.Context())
	report, err := cfg.Pipeline.Run(ctx, principal, file, jobDescription)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"analysis": report.ReportBody})
}

// GET /api/analyses?page=&page_size=
func (cfg *apiConfig) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	principal, err := cfg.Pipeline.Authorize(r.Context(), cfg.sessionToken(r))
	if err != nil {
		writePipelineError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	rows, err := cfg.Reports.ListAnalysesByUser(r.Context(), database.ListAnalysesByUserParams{
		UserID: principal.ID,
		Limit:  int32(pageSize),
		Offset: int32((page - 1) * pageSize),
	})
	if err != nil {
		cfg.Logger.Error("failed to list analyses", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}

	reports := make([]AnalysisReport, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, reportFromRow(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page":      page,
		"page_size": pageSize,
		"analyses":  reports,
	})
}

// GET /api/analyses/{id}
func (cfg *apiConfig) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	principal, err := cfg.Pipeline.Authorize(r.Context(), cfg.sessionToken(r))
	if err != nil {
		writePipelineError(w, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	row, err := cfg.Reports.GetAnalysisForUser(r.Context(), database.GetAnalysisForUserParams{
		ID:     id,
		UserID: principal.ID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		cfg.Logger.Error("failed to get analysis", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get analysis")
		return
	}
	writeJSON(w, http.StatusOK, reportFromRow(row))
}

type healthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// GET /healthz
func (cfg *apiConfig) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := healthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(cfg.Health)),
	}
	for name, checker := range cfg.Health {
		if err := checker.Check(ctx); err != nil {
			health.Status = "unhealthy"
			health.Checks[name] = err.Error()
			continue
		}
		health.Checks[name] = "healthy"
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (cfg *apiConfig) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(cfg.Server.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// readAnalyzeForm returns a nil upload when the resume part is absent; the
// pipeline decides whether that is acceptable.
func readAnalyzeForm(r *http.Request) (*Upload, string, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", fmt.Errorf("upload exceeds %d bytes", maxErr.Limit)
		}
		return nil, "", fmt.Errorf("invalid multipart form: %w", err)
	}
	jobDescription := r.FormValue("job_description")

	part, header, err := r.FormFile("resume")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, jobDescription, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("invalid resume part: %w", err)
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read resume: %w", err)
	}
	return &Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, jobDescription, nil
}

func statusForKind(kind ErrorKind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnsupportedDocument:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func writePipelineError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	message := err.Error()
	if kind == KindInternal {
		message = "An internal error occurred."
	}
	writeError(w, statusForKind(kind), message)
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
