package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "direct", cfg.NotifyMode)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 720*time.Hour, cfg.TokenTTL)
	assert.Empty(t, cfg.AdminIDs)
}

func TestLoadAdminIDs(t *testing.T) {
	t.Setenv("ADMIN_IDS", "11,22")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 22}, cfg.AdminIDs)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "5432", DBName: "circle"}
	assert.Equal(t, "postgres://u:p@h:5432/circle", cfg.PostgresDSN())

	cfg.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.PostgresDSN())
}
