package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/circle/internal/storage"
	"github.com/sudo-init-do/circle/internal/storage/sqlite"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "circle.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("ADMIN_IDS", "7")
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("NOTIFY_MODE", "direct")
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, c := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	c.close()
	return strings.TrimSpace(out.String()), err
}

func TestIssueToken(t *testing.T) {
	path := setupEnv(t)

	token, err := execute(t, "issue-token")
	require.NoError(t, err)
	require.Len(t, token, 32)

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()
	ok, err := store.TokenAvailable(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestModerateFromCLI(t *testing.T) {
	path := setupEnv(t)
	ctx := context.Background()

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.UpsertParticipant(ctx, storage.Participant{ID: 3, Name: "Ola"}))
	id, err := store.CreateListing(ctx, storage.Listing{OwnerID: 3, Direction: storage.DirectionRequest, Title: "Camera"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := execute(t, "pending-lots")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = execute(t, "moderate", id, "maybe")
	assert.Error(t, err)

	_, err = execute(t, "moderate", "--as", "3", id, "approve")
	assert.ErrorContains(t, err, "not in ADMIN_IDS")

	out, err = execute(t, "moderate", id, "approve")
	require.NoError(t, err)
	assert.Equal(t, id+" approved", out)

	out, err = execute(t, "pending-lots")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAccessTokenAndMigrate(t *testing.T) {
	setupEnv(t)

	token, err := execute(t, "access-token", "42")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	_, err = execute(t, "access-token", "abc")
	assert.Error(t, err)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
