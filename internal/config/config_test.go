package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "DB_DRIVER", "CLASSIFIER_BACKEND", "SPIKE_HISTORY_LIMIT", "SPIKE_THRESHOLD", "CORS_ALLOW_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "http", cfg.Classifier.Backend)
	assert.Equal(t, 10, cfg.Spike.HistoryLimit)
	assert.Equal(t, 2.5, cfg.Spike.Threshold)
	assert.Equal(t, 3, cfg.Spike.HourWindow)
	assert.Equal(t, 1.5, cfg.Spike.TimeWeight)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("CLASSIFIER_TIMEOUT", "5s")
	t.Setenv("SPIKE_THRESHOLD", "3.1")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example,")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, 3.1, cfg.Spike.Threshold)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowOrigins)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SPIKE_HISTORY_LIMIT", "ten")
	t.Setenv("DB_CONN_MAX_LIFETIME", "forever")

	cfg := Load()

	assert.Equal(t, 10, cfg.Spike.HistoryLimit)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
}

func TestInitDB_UnknownDriver(t *testing.T) {
	_, err := InitDB(&DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
