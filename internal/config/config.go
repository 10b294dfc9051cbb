package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/ragdesk-backend/internal/chunker"
	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/envutil"
)

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	TriggerAddr    string   `yaml:"trigger_addr"`
	CORSOrigins    []string `yaml:"cors_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
}

type IngestConfig struct {
	PDFDir       string `yaml:"pdf_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	ChunkUnit    string `yaml:"chunk_unit"`
	Encoding     string `yaml:"encoding"`
	Concurrency  int    `yaml:"concurrency"`
	TempDir      string `yaml:"temp_dir"`
	// TreatNoMatchAsError makes /embed answer 404 when nothing matched.
	TreatNoMatchAsError bool `yaml:"treat_no_match_as_error"`
}

type VectorConfig struct {
	Backend string `yaml:"backend"`
	Index   string `yaml:"index"`
	TopK    int    `yaml:"top_k"`

	ChromemPath string `yaml:"chromem_path"`

	QdrantURL        string   `yaml:"qdrant_url"`
	QdrantCollection string   `yaml:"qdrant_collection"`
	QdrantAPIKey     string   `yaml:"qdrant_api_key"`
	QdrantTimeout    Duration `yaml:"qdrant_timeout"`

	PGVectorDSN   string `yaml:"pgvector_dsn"`
	PGVectorTable string `yaml:"pgvector_table"`
}

type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Dimension         int     `yaml:"dimension"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Model             string  `yaml:"model"`
}

type ChatConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

type StorageConfig struct {
	Backend      string `yaml:"backend"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	LocalRoot    string `yaml:"local_root"`
	EmulatorHost string `yaml:"emulator_host"`
	Credentials  string `yaml:"credentials"`

	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

type ExtractorConfig struct {
	Kind                  string   `yaml:"kind"`
	Timeout               Duration `yaml:"timeout"`
	DocumentAIProject     string   `yaml:"documentai_project"`
	DocumentAILocation    string   `yaml:"documentai_location"`
	DocumentAIProcessorID string   `yaml:"documentai_processor_id"`
}

type SessionsConfig struct {
	Backend       string   `yaml:"backend"`
	MaxSessions   int      `yaml:"max_sessions"`
	TTL           Duration `yaml:"ttl"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
}

type TriggerConfig struct {
	WebhookURL string   `yaml:"webhook_url"`
	Audience   string   `yaml:"audience"`
	Timeout    Duration `yaml:"timeout"`
}

type AuthConfig struct {
	// Mode is none, google or signed.
	Mode     string   `yaml:"mode"`
	Audience string   `yaml:"audience"`
	Secret   string   `yaml:"secret"`
	TokenTTL Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Env         string `yaml:"env"`
	LogMode     string `yaml:"log_mode"`
	ServiceName string `yaml:"service_name"`

	HTTP      HTTPConfig      `yaml:"http"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Storage   StorageConfig   `yaml:"storage"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

func Defaults() Config {
	return Config{
		Env:         "development",
		LogMode:     "development",
		ServiceName: "ragdesk",
		HTTP: HTTPConfig{
			Addr:           ":8080",
			TriggerAddr:    ":8081",
			MaxUploadBytes: 5 << 20,
		},
		Ingest: IngestConfig{
			PDFDir:       "pdf_documents/",
			ChunkSize:    chunker.DefaultSize,
			ChunkOverlap: chunker.DefaultOverlap,
			ChunkUnit:    string(chunker.UnitChars),
			Encoding:     chunker.DefaultEncoding,
			Concurrency:  4,
		},
		Vector: VectorConfig{
			Backend:          "memory",
			Index:            "default",
			TopK:             4,
			QdrantCollection: "ragdesk",
			QdrantTimeout:    Duration(10 * time.Second),
			PGVectorTable:    "ragdesk_embeddings",
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			BatchSize: 100,
		},
		Chat: ChatConfig{
			Provider:     "echo",
			SystemPrompt: "You are a helpful assistant that answers questions about insurance policies.",
		},
		Storage: StorageConfig{
			Backend:   "local",
			Prefix:    "pdfs/",
			LocalRoot: "data/objects",
			S3Region:  "us-east-1",
		},
		Extractor: ExtractorConfig{
			Kind:               "pdf",
			Timeout:            Duration(2 * time.Minute),
			DocumentAILocation: "us",
		},
		Sessions: SessionsConfig{
			Backend:     "memory",
			MaxSessions: 1024,
			TTL:         Duration(24 * time.Hour),
		},
		Trigger: TriggerConfig{
			Timeout: Duration(60 * time.Second),
		},
		Auth: AuthConfig{
			Mode:     "none",
			TokenTTL: Duration(5 * time.Minute),
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file (path, or
// RAGDESK_CONFIG, or ./config.yaml when present), then .env, then the
// environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = envutil.String("RAGDESK_CONFIG", "")
	}
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}
	if err := loadYAML(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return &domain.ConfigError{Field: path, Message: err.Error()}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("ENV", cfg.Env)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.ServiceName = envutil.String("SERVICE_NAME", cfg.ServiceName)

	if port := envutil.String("PORT", ""); port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.TriggerAddr = envutil.String("TRIGGER_ADDR", cfg.HTTP.TriggerAddr)
	if origins := envutil.String("CORS_ORIGINS", ""); origins != "" {
		cfg.HTTP.CORSOrigins = splitList(origins)
	}
	cfg.HTTP.MaxUploadBytes = int64(envutil.Int("MAX_UPLOAD_BYTES", int(cfg.HTTP.MaxUploadBytes)))

	cfg.Ingest.PDFDir = envutil.String("PDF_DIR", cfg.Ingest.PDFDir)
	cfg.Ingest.ChunkSize = envutil.Int("CHUNK_SIZE", cfg.Ingest.ChunkSize)
	cfg.Ingest.ChunkOverlap = envutil.Int("CHUNK_OVERLAP", cfg.Ingest.ChunkOverlap)
	cfg.Ingest.ChunkUnit = envutil.String("CHUNK_UNIT", cfg.Ingest.ChunkUnit)
	cfg.Ingest.Encoding = envutil.String("CHUNK_ENCODING", cfg.Ingest.Encoding)
	cfg.Ingest.Concurrency = envutil.Int("INGEST_CONCURRENCY", cfg.Ingest.Concurrency)
	cfg.Ingest.TempDir = envutil.String("INGEST_TEMP_DIR", cfg.Ingest.TempDir)
	cfg.Ingest.TreatNoMatchAsError = envutil.Bool("INGEST_NO_MATCH_IS_ERROR", cfg.Ingest.TreatNoMatchAsError)

	cfg.Vector.Backend = strings.ToLower(envutil.String("VECTOR_BACKEND", cfg.Vector.Backend))
	cfg.Vector.Index = envutil.String("VECTOR_INDEX", cfg.Vector.Index)
	cfg.Vector.TopK = envutil.Int("VECTOR_TOP_K", cfg.Vector.TopK)
	cfg.Vector.ChromemPath = envutil.String("CHROMEM_PATH", cfg.Vector.ChromemPath)
	cfg.Vector.QdrantURL = envutil.String("QDRANT_URL", cfg.Vector.QdrantURL)
	cfg.Vector.QdrantCollection = envutil.String("QDRANT_COLLECTION", cfg.Vector.QdrantCollection)
	cfg.Vector.QdrantAPIKey = envutil.String("QDRANT_API_KEY", cfg.Vector.QdrantAPIKey)
	cfg.Vector.QdrantTimeout = Duration(envutil.Duration("QDRANT_TIMEOUT", cfg.Vector.QdrantTimeout.D()))
	cfg.Vector.PGVectorDSN = envutil.String("PGVECTOR_DSN", cfg.Vector.PGVectorDSN)
	cfg.Vector.PGVectorTable = envutil.String("PGVECTOR_TABLE", cfg.Vector.PGVectorTable)

	cfg.Embedding.Provider = strings.ToLower(envutil.String("EMBEDDING_PROVIDER", cfg.Embedding.Provider))
	cfg.Embedding.Dimension = envutil.Int("EMBEDDING_DIM", cfg.Embedding.Dimension)
	cfg.Embedding.BatchSize = envutil.Int("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)
	cfg.Embedding.Model = envutil.String("EMBEDDING_MODEL", cfg.Embedding.Model)

	cfg.Chat.Provider = strings.ToLower(envutil.String("CHAT_PROVIDER", cfg.Chat.Provider))
	cfg.Chat.Model = envutil.String("CHAT_MODEL", cfg.Chat.Model)
	cfg.Chat.SystemPrompt = envutil.String("CHAT_SYSTEM_PROMPT", cfg.Chat.SystemPrompt)

	cfg.Storage.Backend = strings.ToLower(envutil.String("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.Bucket = envutil.String("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Prefix = envutil.String("STORAGE_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.LocalRoot = envutil.String("STORAGE_LOCAL_ROOT", cfg.Storage.LocalRoot)
	cfg.Storage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.Storage.EmulatorHost)
	cfg.Storage.Credentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", cfg.Storage.Credentials)
	cfg.Storage.S3Region = envutil.String("S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.S3Endpoint = envutil.String("S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3AccessKey = envutil.String("S3_ACCESS_KEY_ID", cfg.Storage.S3AccessKey)
	cfg.Storage.S3SecretKey = envutil.String("S3_SECRET_ACCESS_KEY", cfg.Storage.S3SecretKey)
	cfg.Storage.S3UsePathStyle = envutil.Bool("S3_USE_PATH_STYLE", cfg.Storage.S3UsePathStyle)

	cfg.Extractor.Kind = strings.ToLower(envutil.String("EXTRACTOR", cfg.Extractor.Kind))
	cfg.Extractor.Timeout = Duration(envutil.Duration("EXTRACTOR_TIMEOUT", cfg.Extractor.Timeout.D()))
	cfg.Extractor.DocumentAIProject = envutil.String("DOCUMENTAI_PROJECT", cfg.Extractor.DocumentAIProject)
	cfg.Extractor.DocumentAILocation = envutil.String("DOCUMENTAI_LOCATION", cfg.Extractor.DocumentAILocation)
	cfg.Extractor.DocumentAIProcessorID = envutil.String("DOCUMENTAI_PROCESSOR_ID", cfg.Extractor.DocumentAIProcessorID)

	cfg.Sessions.Backend = strings.ToLower(envutil.String("SESSIONS_BACKEND", cfg.Sessions.Backend))
	cfg.Sessions.MaxSessions = envutil.Int("SESSIONS_MAX", cfg.Sessions.MaxSessions)
	cfg.Sessions.TTL = Duration(envutil.Duration("SESSIONS_TTL", cfg.Sessions.TTL.D()))
	cfg.Sessions.RedisAddr = envutil.String("REDIS_ADDR", cfg.Sessions.RedisAddr)
	cfg.Sessions.RedisPassword = envutil.String("REDIS_PASSWORD", cfg.Sessions.RedisPassword)
	cfg.Sessions.RedisDB = envutil.Int("REDIS_DB", cfg.Sessions.RedisDB)

	cfg.Trigger.WebhookURL = envutil.String("TRIGGER_WEBHOOK_URL", cfg.Trigger.WebhookURL)
	cfg.Trigger.Audience = envutil.String("TRIGGER_AUDIENCE", cfg.Trigger.Audience)
	cfg.Trigger.Timeout = Duration(envutil.Duration("TRIGGER_TIMEOUT", cfg.Trigger.Timeout.D()))

	cfg.Auth.Mode = strings.ToLower(envutil.String("AUTH_MODE", cfg.Auth.Mode))
	cfg.Auth.Audience = envutil.String("AUTH_AUDIENCE", cfg.Auth.Audience)
	cfg.Auth.Secret = envutil.String("AUTH_SECRET", cfg.Auth.Secret)
	cfg.Auth.TokenTTL = Duration(envutil.Duration("AUTH_TOKEN_TTL", cfg.Auth.TokenTTL.D()))

	cfg.Database.Driver = strings.ToLower(envutil.String("DB_DRIVER", cfg.Database.Driver))
	cfg.Database.DSN = envutil.String("DB_DSN", cfg.Database.DSN)

	cfg.Metrics.Addr = envutil.String("METRICS_ADDR", cfg.Metrics.Addr)
}

// Validate rejects configurations that cannot start. Every failure is a
// *domain.ConfigError naming the offending field.
func (c Config) Validate() error {
	if err := c.Chunker().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Vector.Index) == "" {
		return cfgErr("vector.index", "is required")
	}
	if c.Vector.TopK <= 0 {
		return cfgErr("vector.top_k", "must be positive")
	}
	switch c.Vector.Backend {
	case "memory", "chromem":
	case "qdrant":
		if c.Vector.QdrantURL == "" {
			return cfgErr("vector.qdrant_url", "is required for the qdrant backend")
		}
	case "pgvector":
		if c.Vector.PGVectorDSN == "" {
			return cfgErr("vector.pgvector_dsn", "is required for the pgvector backend")
		}
	default:
		return cfgErr("vector.backend", fmt.Sprintf("unknown backend %q", c.Vector.Backend))
	}
	if err := oneOf("embedding.provider", c.Embedding.Provider, "hash", "gemini", "openai"); err != nil {
		return err
	}
	if c.Embedding.Dimension < 0 {
		return cfgErr("embedding.dimension", "must not be negative")
	}
	if err := oneOf("chat.provider", c.Chat.Provider, "echo", "gemini", "openai"); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalRoot == "" {
			return cfgErr("storage.local_root", "is required for the local backend")
		}
	case "gcs", "s3":
		if c.Storage.Bucket == "" {
			return cfgErr("storage.bucket", "is required for the "+c.Storage.Backend+" backend")
		}
	default:
		return cfgErr("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}
	switch c.Extractor.Kind {
	case "pdf", "pdftotext":
	case "documentai":
		if c.Extractor.DocumentAIProject == "" || c.Extractor.DocumentAIProcessorID == "" {
			return cfgErr("extractor.documentai_processor_id", "project and processor id are required for documentai")
		}
	default:
		return cfgErr("extractor.kind", fmt.Sprintf("unknown extractor %q", c.Extractor.Kind))
	}
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Sessions.RedisAddr == "" {
			return cfgErr("sessions.redis_addr", "is required for the redis backend")
		}
	default:
		return cfgErr("sessions.backend", fmt.Sprintf("unknown backend %q", c.Sessions.Backend))
	}
	switch c.Auth.Mode {
	case "none":
	case "google":
		if c.Auth.Audience == "" {
			return cfgErr("auth.audience", "is required for google auth")
		}
	case "signed":
		if c.Auth.Secret == "" {
			return cfgErr("auth.secret", "is required for signed auth")
		}
		if c.Auth.Audience == "" {
			return cfgErr("auth.audience", "is required for signed auth")
		}
	default:
		return cfgErr("auth.mode", fmt.Sprintf("unknown mode %q", c.Auth.Mode))
	}
	if err := oneOf("database.driver", c.Database.Driver, "sqlite", "postgres", "none"); err != nil {
		return err
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return cfgErr("database.dsn", "is required for postgres")
	}
	return nil
}

func (c Config) Chunker() chunker.Config {
	return chunker.Config{
		Size:     c.Ingest.ChunkSize,
		Overlap:  c.Ingest.ChunkOverlap,
		Unit:     chunker.Unit(c.Ingest.ChunkUnit),
		Encoding: c.Ingest.Encoding,
	}
}

// EmbeddingDimension is the configured dimension, or the provider's native
// one when unset.
func (c Config) EmbeddingDimension() int {
	if c.Embedding.Dimension > 0 {
		return c.Embedding.Dimension
	}
	switch c.Embedding.Provider {
	case "gemini":
		return 768
	case "openai":
		return 1536
	default:
		return 256
	}
}

// SourcePath is the location reported back by /embed.
func (c Config) SourcePath() string {
	switch c.Storage.Backend {
	case "gcs":
		return "gs://" + c.Storage.Bucket + "/" + c.Storage.Prefix
	case "s3":
		return "s3://" + c.Storage.Bucket + "/" + c.Storage.Prefix
	default:
		return "file://" + strings.TrimSuffix(c.Storage.LocalRoot, "/") + "/" + c.Storage.Prefix
	}
}

func cfgErr(field, msg string) error {
	return &domain.ConfigError{Field: field, Message: msg}
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return cfgErr(field, fmt.Sprintf("%q is not one of %s", value, strings.Join(allowed, ", ")))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
