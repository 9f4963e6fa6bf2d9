package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BASE_DIR", "/data/asr")
	t.Setenv("DATABASE_URL", "postgres://localhost/transcriber")
	t.Setenv("ASR_BASE_URL", "https://asr.example.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("ASR_WORKERS", "")
	t.Setenv("ASR_RECOGNIZER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/asr", cfg.BaseDir)
	assert.Equal(t, 1, cfg.ASRWorkers)
	assert.Equal(t, "default", cfg.ASRRecognizer)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_WorkerCountOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("ASR_WORKERS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ASRWorkers)
}

func TestLoad_MissingRequiredFails(t *testing.T) {
	cases := []string{"BASE_DIR", "DATABASE_URL", "ASR_BASE_URL"}
	for _, missing := range cases {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidWorkerCountFails(t *testing.T) {
	setRequired(t)
	t.Setenv("ASR_WORKERS", "0")

	_, err := Load()
	assert.Error(t, err)
}
