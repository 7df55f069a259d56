package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	StoreFirestore = "firestore"
	StoreSQLite    = "sqlite"

	StorageGCS   = "gcs"
	StorageLocal = "local"

	DedupScopeAccount    = "account"
	DedupScopeBankFormat = "bank_format"

	EmptyResultParsed = "parsed"
	EmptyResultError  = "error"
)

// Config holds service settings. Values come from an optional YAML file
// (CONFIG_FILE) and are then overridden by environment variables.
type Config struct {
	Port            string `yaml:"port"`
	Environment     string `yaml:"environment"`
	GCPProjectID    string `yaml:"gcp_project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	LogLevel        string `yaml:"log_level"`

	// Persistence
	StoreBackend     string `yaml:"store_backend"`
	SQLitePath       string `yaml:"sqlite_path"`
	CollectionPrefix string `yaml:"collection_prefix"`

	// Uploaded statement files
	StorageBackend   string `yaml:"storage_backend"`
	GCSBucketName    string `yaml:"gcs_bucket_name"`
	LocalStorageRoot string `yaml:"local_storage_root"`
	MaxUploadBytes   int    `yaml:"max_upload_bytes"`

	// Ingestion
	DedupScope        string `yaml:"dedup_scope"`
	EmptyResultPolicy string `yaml:"empty_result_policy"`
	RulesFile         string `yaml:"rules_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:              "8080",
		Environment:       "production",
		GCPProjectID:      "chalanding",
		LogLevel:          "info",
		StoreBackend:      StoreFirestore,
		SQLitePath:        "bookkeeping.db",
		StorageBackend:    StorageGCS,
		GCSBucketName:     "rml-statements",
		LocalStorageRoot:  ".",
		MaxUploadBytes:    20 << 20,
		DedupScope:        DedupScopeAccount,
		EmptyResultPolicy: EmptyResultParsed,
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the environment.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("GO_ENV", cfg.Environment)
	cfg.GCPProjectID = getEnv("GCP_PROJECT_ID", cfg.GCPProjectID)
	cfg.CredentialsFile = getEnv("FIREBASE_CREDENTIALS_FILE", cfg.CredentialsFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.CollectionPrefix = getEnv("COLLECTION_PREFIX", cfg.CollectionPrefix)
	cfg.StorageBackend = getEnv("STORAGE_BACKEND", cfg.StorageBackend)
	cfg.GCSBucketName = getEnv("GCS_BUCKET_NAME", cfg.GCSBucketName)
	cfg.LocalStorageRoot = getEnv("LOCAL_STORAGE_ROOT", cfg.LocalStorageRoot)
	cfg.MaxUploadBytes = getEnvInt("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.DedupScope = getEnv("DEDUP_SCOPE", cfg.DedupScope)
	cfg.EmptyResultPolicy = getEnv("EMPTY_RESULT_POLICY", cfg.EmptyResultPolicy)
	cfg.RulesFile = getEnv("RULES_FILE", cfg.RulesFile)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// Validate rejects unknown backend and policy names.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	switch c.StoreBackend {
	case StoreFirestore, StoreSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	switch c.StorageBackend {
	case StorageGCS, StorageLocal:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	switch c.DedupScope {
	case DedupScopeAccount, DedupScopeBankFormat:
	default:
		return fmt.Errorf("unknown dedup scope %q", c.DedupScope)
	}
	switch c.EmptyResultPolicy {
	case EmptyResultParsed, EmptyResultError:
	default:
		return fmt.Errorf("unknown empty result policy %q", c.EmptyResultPolicy)
	}
	if c.StorageBackend == StorageGCS && c.GCSBucketName == "" {
		return fmt.Errorf("GCS bucket name is required for the gcs storage backend")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
