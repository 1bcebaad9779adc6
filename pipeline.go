package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/muhammadolammi/resumecheck/internal/database"
)

// ReportStore persists finished analyses.
type ReportStore interface {
	CreateAnalysis(ctx context.Context, arg database.CreateAnalysisParams) (database.Analysis, error)
}

// Pipeline turns one uploaded resume and job description into a stored report.
// Steps run in order and the first failure aborts the rest. Nothing already done
// is rolled back: a stored file stays stored and a finished inference call is not
// refunded when persistence fails.
type Pipeline struct {
	identity Identity
	store    ObjectStore
	analyzer Analyzer
	reports  ReportStore
	events   EventPublisher
	logger   *slog.Logger
	clock    *monotonicClock
	newID    func() uuid.UUID
}

type PipelineDeps struct {
	Identity Identity
	Store    ObjectStore
	Analyzer Analyzer
	Reports  ReportStore
	// Events is optional.
	Events EventPublisher
	Logger *slog.Logger
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		identity: deps.Identity,
		store:    deps.Store,
		analyzer: deps.Analyzer,
		reports:  deps.Reports,
		events:   deps.Events,
		logger:   logger,
		clock:    newMonotonicClock(),
		newID:    uuid.New,
	}
}

// Handle runs the whole pipeline for a session token.
func (p *Pipeline) Handle(ctx context.Context, sessionToken string, file *Upload, jobDescription string) (AnalysisReport, error) {
	principal, err := p.Authorize(ctx, sessionToken)
	if err != nil {
		return AnalysisReport{}, err
	}
	return p.Run(ctx, principal, file, jobDescription)
}

// Authorize resolves the session token. It touches nothing but the identity provider.
func (p *Pipeline) Authorize(ctx context.Context, sessionToken string) (Principal, error) {
	if sessionToken == "" {
		return Principal{}, pipelineError(KindUnauthorized, "", ErrUnauthorized)
	}
	principal, ok, err := p.identity.Resolve(ctx, sessionToken)
	if err != nil {
		return Principal{}, pipelineError(KindInternal, "identity", err)
	}
	if !ok {
		return Principal{}, pipelineError(KindUnauthorized, "", ErrUnauthorized)
	}
	return principal, nil
}

// Run executes validation, upload, extraction, inference and persistence for an
// already authorized principal.
func (p *Pipeline) Run(ctx context.Context, principal Principal, file *Upload, jobDescription string) (AnalysisReport, error) {
	logger := p.logger.With("request_id", requestIDFromContext(ctx), "owner_id", principal.ID)

	kind, err := validateRequest(file, jobDescription)
	if err != nil {
		logger.Info("analysis request rejected", "error", err)
		return AnalysisReport{}, err
	}

	stored, err := p.upload(ctx, principal, file)
	if err != nil {
		logger.Error("analysis failed", "step", "upload", "error", err)
		return AnalysisReport{}, pipelineError(KindStorage, "storage error", err)
	}
	logger.Debug("resume stored", "key", stored.Key, "size", stored.Size)

	resumeText, err := ExtractResumeText(kind, file.Data)
	if err != nil {
		logger.Error("analysis failed", "step", "extract", "kind", kind.String(), "key", stored.Key, "error", err)
		return AnalysisReport{}, pipelineError(KindExtraction, "text extraction error", err)
	}
	logger.Debug("resume text extracted", "kind", kind.String(), "chars", len(resumeText))

	reportBody, err := p.analyzer.Analyze(ctx, prompt(resumeText, jobDescription))
	if err != nil {
		logger.Error("analysis failed", "step", "inference", "error", err)
		return AnalysisReport{}, pipelineError(KindInference, "inference error", err)
	}

	row, err := p.reports.CreateAnalysis(ctx, database.CreateAnalysisParams{
		ID:             p.newID(),
		UserID:         principal.ID,
		JobDescription: jobDescription,
		Report:         reportBody,
	})
	if err != nil {
		// the inference call has already been paid for; the report is dropped
		logger.Error("analysis failed", "step", "persist", "error", err)
		return AnalysisReport{}, pipelineError(KindPersistence, "persistence error", err)
	}
	report := reportFromRow(row)
	logger.Info("analysis completed", "analysis_id", report.ID)

	p.publish(ctx, logger, report)
	return report, nil
}

func (p *Pipeline) upload(ctx context.Context, principal Principal, file *Upload) (StoredFile, error) {
	stored := StoredFile{
		Key:         objectKey(principal.ID, p.clock.NextMillis(), file.Filename),
		OwnerID:     principal.ID,
		ContentType: file.ContentType,
		Size:        int64(len(file.Data)),
		UploadedAt:  time.Now(),
	}
	if err := p.store.Put(ctx, stored.Key, file.ContentType, file.Data); err != nil {
		return StoredFile{}, err
	}
	return stored, nil
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, report AnalysisReport) {
	if p.events == nil {
		return
	}
	err := p.events.Publish(ctx, AnalysisEvent{
		AnalysisID: report.ID,
		OwnerID:    report.OwnerID,
		Status:     "completed",
		Message:    "analysis completed",
		Timestamp:  time.Now(),
	})
	if err != nil {
		logger.Warn("failed to publish analysis event", "analysis_id", report.ID, "error", err)
	}
}

// validateRequest checks the inputs before any side effect and returns the document kind.
func validateRequest(file *Upload, jobDescription string) (DocumentKind, error) {
	var missing []string
	if file == nil || len(file.Data) == 0 {
		missing = append(missing, "resume")
	}
	if strings.TrimSpace(jobDescription) == "" {
		missing = append(missing, "job_description")
	}
	if len(missing) > 0 {
		return DocumentUnknown, pipelineError(KindBadRequest, "",
			fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")))
	}

	kind, err := DetectDocumentKind(file.ContentType, file.Filename)
	if err != nil {
		if errors.Is(err, ErrUnsupportedDocument) {
			return DocumentUnknown, pipelineError(KindUnsupportedDocument, "", err)
		}
		return DocumentUnknown, pipelineError(KindBadRequest, "", err)
	}
	return kind, nil
}
