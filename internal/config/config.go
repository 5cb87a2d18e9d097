package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	EmbeddingProviderLocal  = "local"
	EmbeddingProviderOpenAI = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Databases     DatabasesConfig
	Retrieval     RetrievalConfig
	EmbeddingDB   EmbeddingDBConfig
	ObjectStore   ObjectStoreConfig
	AI            AIConfig
	Eval          EvalConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabasesConfig locates the queryable databases, one directory per db_id.
type DatabasesConfig struct {
	Root             string
	Targets          string
	DescriptionsPath string
	RowLimit         int
	QueryTimeout     time.Duration
}

type RetrievalConfig struct {
	TopK           int
	TopDatabases   int
	EmbeddingsPath string
}

// EmbeddingDBConfig points at the optional Postgres store for database
// embeddings. An empty DSN selects the parquet file in RetrievalConfig.
type EmbeddingDBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type AIConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	Timeout           time.Duration
	MaxRetries        int
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int
}

type EvalConfig struct {
	Concurrency int
	SampleRate  float64
	SampleSeed  int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLRAG_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLRAG_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "SQLRAG_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "SQLRAG_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "SQLRAG_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SQLRAG_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SQLRAG_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "SQLRAG_DATABASES_ROOT", &cfg.Databases.Root) },
		func() error { return applyString(lookup, "SQLRAG_DATABASE_TARGETS", &cfg.Databases.Targets) },
		func() error { return applyString(lookup, "SQLRAG_DESCRIPTIONS_PATH", &cfg.Databases.DescriptionsPath) },
		func() error { return applyInt(lookup, "SQLRAG_QUERY_ROW_LIMIT", &cfg.Databases.RowLimit) },
		func() error { return applyDuration(lookup, "SQLRAG_QUERY_TIMEOUT", &cfg.Databases.QueryTimeout) },
		func() error { return applyInt(lookup, "SQLRAG_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK) },
		func() error { return applyInt(lookup, "SQLRAG_RETRIEVAL_TOP_DATABASES", &cfg.Retrieval.TopDatabases) },
		func() error { return applyString(lookup, "SQLRAG_EMBEDDINGS_PATH", &cfg.Retrieval.EmbeddingsPath) },
		func() error { return applyString(lookup, "SQLRAG_EMBEDDING_DB_DSN", &cfg.EmbeddingDB.DSN) },
		func() error { return applyInt(lookup, "SQLRAG_EMBEDDING_DB_MAX_OPEN_CONNS", &cfg.EmbeddingDB.MaxOpenConns) },
		func() error { return applyInt(lookup, "SQLRAG_EMBEDDING_DB_MAX_IDLE_CONNS", &cfg.EmbeddingDB.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "SQLRAG_EMBEDDING_DB_CONN_MAX_IDLE_TIME", &cfg.EmbeddingDB.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "SQLRAG_EMBEDDING_DB_CONN_MAX_LIFETIME", &cfg.EmbeddingDB.ConnMaxLifetime)
		},
		func() error { return applyBool(lookup, "SQLRAG_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled) },
		func() error { return applyString(lookup, "SQLRAG_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "SQLRAG_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "SQLRAG_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "SQLRAG_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "SQLRAG_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "SQLRAG_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "SQLRAG_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "SQLRAG_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "SQLRAG_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "SQLRAG_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "SQLRAG_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "SQLRAG_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "SQLRAG_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "SQLRAG_AI_MAX_RETRIES", &cfg.AI.MaxRetries) },
		func() error { return applyString(lookup, "SQLRAG_EMBEDDING_PROVIDER", &cfg.AI.EmbeddingProvider) },
		func() error { return applyString(lookup, "SQLRAG_EMBEDDING_MODEL", &cfg.AI.EmbeddingModel) },
		func() error { return applyInt(lookup, "SQLRAG_EMBEDDING_DIM", &cfg.AI.EmbeddingDim) },
		func() error { return applyInt(lookup, "SQLRAG_EVAL_CONCURRENCY", &cfg.Eval.Concurrency) },
		func() error { return applyFloat(lookup, "SQLRAG_EVAL_SAMPLE_RATE", &cfg.Eval.SampleRate) },
		func() error { return applyInt(lookup, "SQLRAG_EVAL_SAMPLE_SEED", &cfg.Eval.SampleSeed) },
		func() error { return applyBool(lookup, "SQLRAG_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SQLRAG_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "SQLRAG_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "SQLRAG_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	cfg.AI.EmbeddingProvider = strings.ToLower(cfg.AI.EmbeddingProvider)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate reports every problem at once so a broken .env can be fixed in
// one pass.
func (c Config) validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Service.Name != "", "service name is required")
	check(c.HTTP.Address != "", "http address is required")
	check(c.Databases.Root != "", "databases root is required")
	check(c.Databases.RowLimit > 0, "SQLRAG_QUERY_ROW_LIMIT must be > 0")
	check(c.Retrieval.TopK > 0, "SQLRAG_RETRIEVAL_TOP_K must be > 0")
	check(c.Retrieval.TopDatabases > 0, "SQLRAG_RETRIEVAL_TOP_DATABASES must be > 0")
	check(c.AI.EmbeddingProvider == EmbeddingProviderLocal || c.AI.EmbeddingProvider == EmbeddingProviderOpenAI,
		"invalid SQLRAG_EMBEDDING_PROVIDER: %q", c.AI.EmbeddingProvider)
	check(c.AI.EmbeddingDim > 0, "SQLRAG_EMBEDDING_DIM must be > 0")
	check(c.AI.MaxRetries >= 0, "SQLRAG_AI_MAX_RETRIES must be >= 0")
	check(c.Eval.Concurrency > 0, "SQLRAG_EVAL_CONCURRENCY must be > 0")
	check(c.Eval.SampleRate > 0 && c.Eval.SampleRate <= 1, "SQLRAG_EVAL_SAMPLE_RATE must be in (0, 1]")
	check(!c.ObjectStore.Enabled || c.ObjectStore.Bucket != "", "SQLRAG_OBJECTSTORE_BUCKET is required when the object store is enabled")
	return errors.Join(errs...)
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlrag-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Databases: DatabasesConfig{
			Root:             "spider/database",
			DescriptionsPath: "schema_descriptions.json",
			RowLimit:         1000,
			QueryTimeout:     30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:           8,
			TopDatabases:   3,
			EmbeddingsPath: "database_embeddings.parquet",
		},
		EmbeddingDB: EmbeddingDBConfig{
			DSN:             "",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlrag",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		AI: AIConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Temperature:       0.3,
			Timeout:           60 * time.Second,
			MaxRetries:        2,
			EmbeddingProvider: EmbeddingProviderOpenAI,
			EmbeddingModel:    "text-embedding-3-small",
			EmbeddingDim:      1536,
		},
		Eval: EvalConfig{
			Concurrency: 4,
			SampleRate:  0.1,
			SampleSeed:  99,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
		cfg.AI.EmbeddingProvider = EmbeddingProviderLocal
		cfg.AI.EmbeddingDim = 256
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

// apply overwrites *dst when key is set. Values are trimmed before parsing.
func apply[T any](lookup LookupFunc, key string, dst *T, parse func(string) (T, error)) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	return apply(lookup, key, dst, func(raw string) (string, error) { return raw, nil })
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	return apply(lookup, key, dst, time.ParseDuration)
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	return apply(lookup, key, dst, strconv.ParseBool)
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	return apply(lookup, key, dst, strconv.Atoi)
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	return apply(lookup, key, dst, func(raw string) (float64, error) { return strconv.ParseFloat(raw, 64) })
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	return apply(lookup, key, dst, func(raw string) (slog.Level, error) {
		switch strings.ToLower(raw) {
		case "debug":
			return slog.LevelDebug, nil
		case "info":
			return slog.LevelInfo, nil
		case "warn", "warning":
			return slog.LevelWarn, nil
		case "error":
			return slog.LevelError, nil
		}
		return 0, fmt.Errorf("unknown level %q", raw)
	})
}
