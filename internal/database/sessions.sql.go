package database

import (
	"context"
	"time"
)

const getSessionUser = `-- name: GetSessionUser :one
SELECT user_id FROM user_sessions
WHERE token=$1 AND expires_at > NOW()
`

func (q *Queries) GetSessionUser(ctx context.Context, token string) (string, error) {
	row := q.db.QueryRowContext(ctx, getSessionUser, token)
	var user_id string
	err := row.Scan(&user_id)
	return user_id, err
}

const createSession = `-- name: CreateSession :exec
INSERT INTO user_sessions (
token, user_id, expires_at)
VALUES ($1, $2, $3)
`

type CreateSessionParams struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.ExecContext(ctx, createSession, arg.Token, arg.UserID, arg.ExpiresAt)
	return err
}
