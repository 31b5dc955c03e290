package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig describes the operational store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

// DSN builds the driver-specific connection string. URL wins for postgres.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type QdrantConfig struct {
	Host        string            `mapstructure:"host"`
	Port        int               `mapstructure:"port"`
	APIKey      string            `mapstructure:"api_key"`
	UseTLS      bool              `mapstructure:"use_tls"`
	Collections map[string]string `mapstructure:"collections"`
}

type ReasoningConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"` // openai, anthropic, ollama
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// JobsConfig controls the job ledger store and the worker pool.
type JobsConfig struct {
	Store        string        `mapstructure:"store"` // memory, sql, redis
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	EnqueueWait  time.Duration `mapstructure:"enqueue_wait"`
	Retention    time.Duration `mapstructure:"retention"`
	CleanupEvery time.Duration `mapstructure:"cleanup_every"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig points at an S3-compatible bucket holding ingestion documents.
type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// Enabled reports whether enough is configured to build a client.
func (c *StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type AnalysisConfig struct {
	TopK              int    `mapstructure:"top_k"`
	EDIWindowHours    int    `mapstructure:"edi_window_hours"`
	RecentWindowHours int    `mapstructure:"recent_window_hours"`
	ContactsFile      string `mapstructure:"contacts_file"`
	DataDir           string `mapstructure:"data_dir"` // root for local ingest paths
}

type ChunkingConfig struct {
	KnowledgeBase ChunkParams `mapstructure:"knowledge_base"`
	CaseRows      ChunkParams `mapstructure:"case_rows"`
}

type ChunkParams struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/portdesk.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collections", map[string]string{
		"case_history":   "case_history",
		"knowledge_base": "knowledge_base",
	})
	v.SetDefault("embedding.provider", "openai-compatible")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.requests_per_second", 5)
	v.SetDefault("reasoning.enabled", false)
	v.SetDefault("reasoning.provider", "openai")
	v.SetDefault("reasoning.model", "gpt-4o-mini")
	v.SetDefault("jobs.store", "memory")
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.queue_size", 256)
	v.SetDefault("jobs.enqueue_wait", 2*time.Second)
	v.SetDefault("jobs.retention", 24*time.Hour)
	v.SetDefault("jobs.cleanup_every", time.Hour)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "portdesk:job:")
	v.SetDefault("analysis.top_k", 3)
	v.SetDefault("analysis.data_dir", "./data")
	v.SetDefault("analysis.edi_window_hours", 12)
	v.SetDefault("analysis.recent_window_hours", 48)
	v.SetDefault("chunking.knowledge_base.max_tokens", 400)
	v.SetDefault("chunking.knowledge_base.overlap_tokens", 60)
	v.SetDefault("chunking.case_rows.max_tokens", 350)
	v.SetDefault("chunking.case_rows.overlap_tokens", 50)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("qdrant.host", "QDRANT_HOST")
	_ = v.BindEnv("qdrant.port", "QDRANT_PORT")
	_ = v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	_ = v.BindEnv("embedding.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("embedding.model", "EMBED_MODEL")
	_ = v.BindEnv("reasoning.api_key", "REASONING_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("reasoning.model", "REASONING_MODEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET")
}

// Load reads configuration from file, .env and the environment.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Embedding.ResolveEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations and required values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	switch c.Jobs.Store {
	case "memory", "sql", "redis":
	default:
		return fmt.Errorf("jobs: unknown store %q", c.Jobs.Store)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs: workers must be positive")
	}
	if c.Analysis.TopK <= 0 {
		return fmt.Errorf("analysis: top_k must be positive")
	}
	for _, p := range []ChunkParams{c.Chunking.KnowledgeBase, c.Chunking.CaseRows} {
		if p.MaxTokens <= 0 || p.OverlapTokens < 0 || p.OverlapTokens >= p.MaxTokens {
			return fmt.Errorf("chunking: invalid params max=%d overlap=%d", p.MaxTokens, p.OverlapTokens)
		}
	}
	if c.Reasoning.Enabled {
		switch c.Reasoning.Provider {
		case "openai", "anthropic", "ollama":
		default:
			return fmt.Errorf("reasoning: unknown provider %q", c.Reasoning.Provider)
		}
	}
	return c.Embedding.Validate()
}
