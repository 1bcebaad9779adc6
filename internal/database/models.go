package database

import (
	"time"

	"github.com/google/uuid"
)

type Analysis struct {
	ID             uuid.UUID
	UserID         string
	JobDescription string
	Report         string
	CreatedAt      time.Time
}
