//go:build integration

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testQueries *Queries

// TestMain starts a throwaway Postgres container shared by every test in the package.
func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "resumecheck",
				"POSTGRES_PASSWORD": "resumecheck",
				"POSTGRES_DB":       "resumecheck",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("failed to get mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://resumecheck:resumecheck@%s:%s/resumecheck?sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	testQueries = New(db)

	code := m.Run()

	_ = db.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestMigrateIsIdempotent(t *testing.T) {
	require.NoError(t, Migrate(context.Background(), testQueries.db))
}

func TestCreateAndGetAnalysis(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	created, err := testQueries.CreateAnalysis(ctx, CreateAnalysisParams{
		ID:             id,
		UserID:         "user-create",
		JobDescription: "Go developer\nPostgres",
		Report:         "## Summary\nGood fit.",
	})
	require.NoError(t, err)
	assert.Equal(t, id, created.ID)
	assert.False(t, created.CreatedAt.IsZero(), "created_at should default")

	got, err := testQueries.GetAnalysisForUser(ctx, GetAnalysisForUserParams{ID: id, UserID: "user-create"})
	require.NoError(t, err)
	assert.Equal(t, "## Summary\nGood fit.", got.Report)
	assert.Equal(t, "Go developer\nPostgres", got.JobDescription)

	_, err = testQueries.GetAnalysisForUser(ctx, GetAnalysisForUserParams{ID: id, UserID: "someone-else"})
	assert.True(t, errors.Is(err, sql.ErrNoRows), "other users must not see the report")
}

func TestListAnalysesByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	for _, report := range []string{"first", "second", "third"} {
		_, err := testQueries.CreateAnalysis(ctx, CreateAnalysisParams{
			ID:             uuid.New(),
			UserID:         "user-list",
			JobDescription: "jd",
			Report:         report,
		})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	items, err := testQueries.ListAnalysesByUser(ctx, ListAnalysesByUserParams{UserID: "user-list", Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "third", items[0].Report)
	assert.Equal(t, "second", items[1].Report)

	items, err = testQueries.ListAnalysesByUser(ctx, ListAnalysesByUserParams{UserID: "user-list", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "first", items[0].Report)
}

func TestGetSessionUserIgnoresExpired(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, testQueries.CreateSession(ctx, CreateSessionParams{
		Token:     "live-token",
		UserID:    "user-session",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, testQueries.CreateSession(ctx, CreateSessionParams{
		Token:     "stale-token",
		UserID:    "user-session",
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	userID, err := testQueries.GetSessionUser(ctx, "live-token")
	require.NoError(t, err)
	assert.Equal(t, "user-session", userID)

	_, err = testQueries.GetSessionUser(ctx, "stale-token")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = testQueries.GetSessionUser(ctx, "missing-token")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
