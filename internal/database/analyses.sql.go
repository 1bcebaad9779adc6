package database

import (
	"context"

	"github.com/google/uuid"
)

const createAnalysis = `-- name: CreateAnalysis :one
INSERT INTO analyses (
id, user_id, job_description, report)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, job_description, report, created_at
`

type CreateAnalysisParams struct {
	ID             uuid.UUID
	UserID         string
	JobDescription string
	Report         string
}

func (q *Queries) CreateAnalysis(ctx context.Context, arg CreateAnalysisParams) (Analysis, error) {
	row := q.db.QueryRowContext(ctx, createAnalysis,
		arg.ID,
		arg.UserID,
		arg.JobDescription,
		arg.Report,
	)
	var i Analysis
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.JobDescription,
		&i.Report,
		&i.CreatedAt,
	)
	return i, err
}

const getAnalysisForUser = `-- name: GetAnalysisForUser :one
SELECT id, user_id, job_description, report, created_at FROM analyses
WHERE id=$1 AND user_id=$2
`

type GetAnalysisForUserParams struct {
	ID     uuid.UUID
	UserID string
}

func (q *Queries) GetAnalysisForUser(ctx context.Context, arg GetAnalysisForUserParams) (Analysis, error) {
	row := q.db.QueryRowContext(ctx, getAnalysisForUser, arg.ID, arg.UserID)
	var i Analysis
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.JobDescription,
		&i.Report,
		&i.CreatedAt,
	)
	return i, err
}

const listAnalysesByUser = `-- name: ListAnalysesByUser :many
SELECT id, user_id, job_description, report, created_at FROM analyses
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`

type ListAnalysesByUserParams struct {
	UserID string
	Limit  int32
	Offset int32
}

func (q *Queries) ListAnalysesByUser(ctx context.Context, arg ListAnalysesByUserParams) ([]Analysis, error) {
	rows, err := q.db.QueryContext(ctx, listAnalysesByUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Analysis
	for rows.Next() {
		var i Analysis
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.JobDescription,
			&i.Report,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
