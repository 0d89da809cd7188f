//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/barrulus/clepho/internal/store"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "clepho",
			"POSTGRES_PASSWORD": "clepho",
			"POSTGRES_DB":       "clepho_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker not available, skipping postgres integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://clepho:clepho@%s:%s/clepho_test?sslmode=disable", host, port.Port())

	s, err := Open(ctx, Config{URL: url, MaxOpenConns: 5, MaxIdleConns: 2}, slog.Default())
	require.NoError(t, err)

	return s, func() {
		s.Close()
		container.Terminate(ctx)
	}
}

func TestStoreMigratesAndRoundTrips(t *testing.T) {
	s, cleanup := setupTestStore(t)
	if s == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	id, err := s.UpsertPhoto(ctx, store.UpsertPhotoParams{
		Path: "/photos/a.jpg", ModifiedAt: time.Now().Unix(), ScannedAt: time.Now().Unix(),
		SHA256: "abc123",
	})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "a.jpg", got.Filename)

	now := time.Now().Unix()
	taskID, err := s.CreateTask(ctx, store.ScheduledTask{
		Kind: store.TaskScan, TargetPath: "/photos", ScheduledAt: time.Unix(now-5, 0),
	})
	require.NoError(t, err)

	claimed, err := s.ClaimDue(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, taskID, claimed.ID)
}
