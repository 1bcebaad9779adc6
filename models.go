package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/muhammadolammi/resumecheck/internal/database"
)

type R2Config struct {
	AccountID string `yaml:"account_id"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// Endpoint overrides the account endpoint, for S3-compatible gateways and tests.
	Endpoint string `yaml:"endpoint"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type Principal struct {
	ID string
}

// Upload is the resume part of an analysis request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type StoredFile struct {
	Key         string
	OwnerID     string
	ContentType string
	Size        int64
	UploadedAt  time.Time
}

type AnalysisReport struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        string    `json:"owner_id"`
	JobDescription string    `json:"job_description"`
	ReportBody     string    `json:"report"`
	CreatedAt      time.Time `json:"created_at"`
}

type AnalysisEvent struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	OwnerID    string    `json:"owner_id"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

func reportFromRow(row database.Analysis) AnalysisReport {
	return AnalysisReport{
		ID:             row.ID,
		OwnerID:        row.UserID,
		JobDescription: row.JobDescription,
		ReportBody:     row.Report,
		CreatedAt:      row.CreatedAt,
	}
}
