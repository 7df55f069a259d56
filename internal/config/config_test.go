package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "GO_ENV", "GCP_PROJECT_ID", "FIREBASE_CREDENTIALS_FILE", "LOG_LEVEL",
		"STORE_BACKEND", "SQLITE_PATH", "COLLECTION_PREFIX", "STORAGE_BACKEND",
		"GCS_BUCKET_NAME", "LOCAL_STORAGE_ROOT", "MAX_UPLOAD_BYTES",
		"DEDUP_SCOPE", "EMPTY_RESULT_POLICY", "RULES_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DedupScopeAccount, cfg.DedupScope)
	assert.Equal(t, EmptyResultParsed, cfg.EmptyResultPolicy)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("DEDUP_SCOPE", "bank_format")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, DedupScopeBankFormat, cfg.DedupScope)
	assert.Equal(t, 1024, cfg.MaxUploadBytes)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_UPLOAD_BYTES", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().MaxUploadBytes, cfg.MaxUploadBytes)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bookkeeping.yaml")
	content := `
port: "7000"
store_backend: sqlite
storage_backend: local
local_storage_root: /srv/uploads
empty_result_policy: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Port, "environment wins over file")
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, StorageLocal, cfg.StorageBackend)
	assert.Equal(t, "/srv/uploads", cfg.LocalStorageRoot)
	assert.Equal(t, EmptyResultError, cfg.EmptyResultPolicy)
	assert.Equal(t, DedupScopeAccount, cfg.DedupScope, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"store backend", func(c *Config) { c.StoreBackend = "postgres" }},
		{"storage backend", func(c *Config) { c.StorageBackend = "s3" }},
		{"dedup scope", func(c *Config) { c.DedupScope = "user" }},
		{"empty result policy", func(c *Config) { c.EmptyResultPolicy = "ignore" }},
		{"missing bucket", func(c *Config) { c.GCSBucketName = "" }},
		{"missing port", func(c *Config) { c.Port = "" }},
		{"upload limit", func(c *Config) { c.MaxUploadBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
