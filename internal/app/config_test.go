package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	require.NotEmpty(t, cfg.APIBaseURL)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.Equal(t, 5, cfg.FailureThreshold)
	require.Equal(t, 30*time.Second, cfg.OpenTimeout)
	require.Equal(t, 3, cfg.QueueWorkers)
	require.Equal(t, 300*time.Millisecond, cfg.SearchDebounce)
	require.Equal(t, 2*time.Second, cfg.AutoBatchWindow)
	require.Equal(t, 500*time.Millisecond, cfg.HistorySealTime)
	require.Equal(t, 50, cfg.HistoryMaxSize)
	require.Equal(t, 30*time.Second, cfg.OrdersPollInterval)
	require.Empty(t, cfg.HistoryFile, "history persistence is off by default")
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MD_API_BASE_URL", "http://backend:8080/api")
	t.Setenv("MD_QUEUE_WORKERS", "7")
	t.Setenv("MD_OPEN_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://backend:8080/api", cfg.APIBaseURL)
	require.Equal(t, 7, cfg.QueueWorkers)
	require.Equal(t, 45*time.Second, cfg.OpenTimeout)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("MD_QUEUE_WORKERS", "-2")

	_, err := Load()
	require.Error(t, err, "negative worker count must be rejected")
}
