package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/muhammadolammi/resumecheck/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	*pipelineFixture
	health map[string]HealthChecker
	server ServerConfig
}

func newRouterFixture() *routerFixture {
	return &routerFixture{
		pipelineFixture: newPipelineFixture(),
		health:          map[string]HealthChecker{},
		server:          ServerConfig{SessionCookie: "session", MaxUploadBytes: 1 << 20},
	}
}

func (f *routerFixture) router(t *testing.T) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRouter(ctx, apiConfig{
		Pipeline: f.pipeline,
		Reports:  f.reports,
		Health:   f.health,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Server:   f.server,
	})
}

type formFile struct {
	filename    string
	contentType string
	body        string
}

func multipartBody(t *testing.T, file *formFile, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="resume"; filename=%q`, file.filename))
		header.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte(file.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func analyzeRequest(t *testing.T, token string, file *formFile, fields map[string]string) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, file, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: token})
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestAnalyzeEndpointSuccess(t *testing.T) {
	f := newRouterFixture()
	f.analyzer.reply = "## Summary\nGood fit."
	resume := "Jane Doe\nGo engineer\nPostgres, Redis"
	jd := "Backend engineer\nGo required"

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, analyzeRequest(t, "valid-token",
		&formFile{filename: "resume.txt", contentType: "text/plain", body: resume},
		map[string]string{"job_description": jd}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, map[string]any{"analysis": "## Summary\nGood fit."}, decodeBody(t, rec))

	require.Len(t, f.reports.rows, 1)
	assert.Equal(t, jd, f.reports.rows[0].JobDescription)
	assert.Equal(t, "user-1", f.reports.rows[0].UserID)
	require.Len(t, f.store.puts, 1)
	assert.Equal(t, []byte(resume), f.store.puts[0].Data)
}

func TestAnalyzeEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		file       *formFile
		fields     map[string]string
		setup      func(f *routerFixture)
		wantStatus int
		wantError  string
	}{
		{
			name:       "no session cookie",
			file:       &formFile{filename: "cv.txt", contentType: "text/plain", body: "Go"},
			fields:     map[string]string{"job_description": "Go role"},
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized",
		},
		{
			name:       "unknown session",
			token:      "expired",
			file:       &formFile{filename: "cv.txt", contentType: "text/plain", body: "Go"},
			fields:     map[string]string{"job_description": "Go role"},
			wantStatus: http.StatusUnauthorized,
			wantError:  "unauthorized",
		},
		{
			name:       "identity backend down",
			token:      "valid-token",
			file:       &formFile{filename: "cv.txt", contentType: "text/plain", body: "Go"},
			fields:     map[string]string{"job_description": "Go role"},
			setup:      func(f *routerFixture) { f.identity.err = errors.New("dial tcp: refused") },
			wantStatus: http.StatusInternalServerError,
			wantError:  "An internal error occurred.",
		},
		{
			name:       "missing job description",
			token:      "valid-token",
			file:       &formFile{filename: "cv.txt", contentType: "text/plain", body: "Go"},
			wantStatus: http.StatusBadRequest,
			wantError:  "missing required fields: job_description",
		},
		{
			name:       "missing resume",
			token:      "valid-token",
			fields:     map[string]string{"job_description": "Go role"},
			wantStatus: http.StatusBadRequest,
			wantError:  "missing required fields: resume",
		},
		{
			name:       "unsupported type",
			token:      "valid-token",
			file:       &formFile{filename: "cv.png", contentType: "image/png", body: "\x89PNG"},
			fields:     map[string]string{"job_description": "Go role"},
			wantStatus: http.StatusUnsupportedMediaType,
			wantError:  "unsupported file type: image/png",
		},
		{
			name:       "storage failure",
			token:      "valid-token",
			file:       &formFile{filename: "cv.txt", contentType: "text/plain", body: "Go"},
			fields:     map[string]string{"job_description": "Go role"},
			setup:      func(f *routerFixture) { f.store.err = errors.New("access denied") },
			wantStatus: http.StatusInternalServerError,
			wantError:  "storage error: access denied",
		},
		{
			name:       "inference failure",
			token:      "valid-token",
			file:       &formFile{filename: "cv.txt", contentType: "text/plain", body: "Go"},
			fields:     map[string]string{"job_description": "Go role"},
			setup:      func(f *routerFixture) { f.analyzer.err = errors.New("quota exceeded") },
			wantStatus: http.StatusInternalServerError,
			wantError:  "inference error: quota exceeded",
		},
		{
			name:       "persistence failure",
			token:      "valid-token",
			file:       &formFile{filename: "cv.txt", contentType: "text/plain", body: "Go"},
			fields:     map[string]string{"job_description": "Go role"},
			setup:      func(f *routerFixture) { f.reports.err = errors.New("connection reset") },
			wantStatus: http.StatusInternalServerError,
			wantError:  "persistence error: connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			rec := httptest.NewRecorder()
			f.router(t).ServeHTTP(rec, analyzeRequest(t, tt.token, tt.file, tt.fields))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeBody(t, rec)["error"])
			assert.Empty(t, f.reports.rows)
		})
	}
}

func TestAnalyzeEndpointNotMultipart(t *testing.T) {
	f := newRouterFixture()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString(`{"job_description":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "session", Value: "valid-token"})

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.assertNoSideEffects(t)
}

func TestAnalyzeEndpointRejectsBeforeReadingBodyWhenUnauthorized(t *testing.T) {
	f := newRouterFixture()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString("garbage"))
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnalyzeEndpointUploadTooLarge(t *testing.T) {
	f := newRouterFixture()
	f.server.MaxUploadBytes = 512

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, analyzeRequest(t, "valid-token",
		&formFile{filename: "cv.txt", contentType: "text/plain", body: string(bytes.Repeat([]byte("a"), 4096))},
		map[string]string{"job_description": "Go role"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.assertNoSideEffects(t)
}

func TestAnalyzeEndpointRateLimited(t *testing.T) {
	f := newRouterFixture()
	f.server.RateLimitRPS = 0.001
	f.server.RateLimitBurst = 1
	router := f.router(t)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, analyzeRequest(t, "", nil, nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, analyzeRequest(t, "", nil, nil))

	assert.Equal(t, http.StatusUnauthorized, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func seedReports(f *routerFixture, owner string, n int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		id := uuid.New()
		f.reports.rows = append(f.reports.rows, database.Analysis{
			ID:             id,
			UserID:         owner,
			JobDescription: fmt.Sprintf("role %d", i),
			Report:         fmt.Sprintf("report %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		})
		ids = append(ids, id)
	}
	return ids
}

func getRequest(target, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: token})
	}
	return req
}

func TestListAnalyses(t *testing.T) {
	f := newRouterFixture()
	seedReports(f, "user-1", 3)
	seedReports(f, "user-2", 2)

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, getRequest("/api/analyses?page=1&page_size=2", "valid-token"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
		Analyses []AnalysisReport `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 2, body.PageSize)
	require.Len(t, body.Analyses, 2)
	assert.Equal(t, "report 2", body.Analyses[0].ReportBody)
	assert.Equal(t, "report 1", body.Analyses[1].ReportBody)
	for _, a := range body.Analyses {
		assert.Equal(t, "user-1", a.OwnerID)
	}
}

func TestListAnalysesPageSizeClamped(t *testing.T) {
	f := newRouterFixture()

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, getRequest("/api/analyses?page=-3&page_size=5000", "valid-token"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, maxPageSize, body["page_size"])
	assert.Equal(t, []any{}, body["analyses"])
}

func TestListAnalysesUnauthorized(t *testing.T) {
	f := newRouterFixture()

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, getRequest("/api/analyses", ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetAnalysis(t *testing.T) {
	f := newRouterFixture()
	mine := seedReports(f, "user-1", 1)
	theirs := seedReports(f, "user-2", 1)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "own report", path: "/api/analyses/" + mine[0].String(), wantStatus: http.StatusOK},
		{name: "someone else's report", path: "/api/analyses/" + theirs[0].String(), wantStatus: http.StatusNotFound},
		{name: "unknown id", path: "/api/analyses/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "malformed id", path: "/api/analyses/not-a-uuid", wantStatus: http.StatusNotFound},
	}
	router := f.router(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, getRequest(tt.path, "valid-token"))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var report AnalysisReport
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
			assert.Equal(t, mine[0], report.ID)
			assert.Equal(t, "report 0", report.ReportBody)
			assert.Equal(t, "role 0", report.JobDescription)
		})
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks",
			checks:     map[string]HealthChecker{},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "all healthy",
			checks: map[string]HealthChecker{
				"database": HealthCheckFunc(func(context.Context) error { return nil }),
			},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "database down",
			checks: map[string]HealthChecker{
				"database": HealthCheckFunc(func(context.Context) error { return errors.New("connection refused") }),
				"redis":    HealthCheckFunc(func(context.Context) error { return nil }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			f.health = tt.checks

			rec := httptest.NewRecorder()
			f.router(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body healthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newRouterFixture()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name            string
		allowedOrigins  []string
		wantAllowOrigin string
		wantCredentials string
	}{
		{name: "no origins configured", allowedOrigins: nil},
		{
			name:            "configured origin",
			allowedOrigins:  []string{"https://app.example.com"},
			wantAllowOrigin: "https://app.example.com",
			wantCredentials: "true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			f.server.AllowedOrigins = tt.allowedOrigins
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Origin", "https://app.example.com")

			rec := httptest.NewRecorder()
			f.router(t).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantAllowOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	f := newRouterFixture()
	f.server.AllowedOrigins = []string{"https://app.example.com"}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")

	rec := httptest.NewRecorder()
	f.router(t).ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, statusForKind(KindUnauthorized))
	assert.Equal(t, http.StatusBadRequest, statusForKind(KindBadRequest))
	assert.Equal(t, http.StatusUnsupportedMediaType, statusForKind(KindUnsupportedDocument))
	for _, kind := range []ErrorKind{KindInternal, KindStorage, KindExtraction, KindInference, KindPersistence} {
		assert.Equal(t, http.StatusInternalServerError, statusForKind(kind), kind.String())
	}
}
