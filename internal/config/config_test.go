package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Jobs.Store)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, 3, cfg.Analysis.TopK)
	assert.Equal(t, "./data", cfg.Analysis.DataDir)
	assert.Equal(t, 256, cfg.Jobs.QueueSize)
	assert.Equal(t, 2*time.Second, cfg.Jobs.EnqueueWait)
	assert.Equal(t, 400, cfg.Chunking.KnowledgeBase.MaxTokens)
	assert.Equal(t, 60, cfg.Chunking.KnowledgeBase.OverlapTokens)
	assert.Equal(t, 350, cfg.Chunking.CaseRows.MaxTokens)
	assert.Equal(t, 50, cfg.Chunking.CaseRows.OverlapTokens)
	assert.Equal(t, 100, cfg.Embedding.BatchSize)
	assert.Equal(t, "case_history", cfg.Qdrant.Collections["case_history"])
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("JOBS_STORE", "redis")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "redis", cfg.Jobs.Store)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Driver: "sqlite"},
			Jobs:      JobsConfig{Store: "memory", Workers: 1},
			Analysis:  AnalysisConfig{TopK: 3},
			Chunking:  ChunkingConfig{KnowledgeBase: ChunkParams{400, 60}, CaseRows: ChunkParams{350, 50}},
			Embedding: EmbeddingConfig{Provider: "openai-compatible", Model: "m", Dimensions: 8, BatchSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "unknown driver"},
		{name: "bad store", mutate: func(c *Config) { c.Jobs.Store = "file" }, wantErr: "unknown store"},
		{name: "overlap too large", mutate: func(c *Config) { c.Chunking.CaseRows.OverlapTokens = 400 }, wantErr: "chunking"},
		{name: "bad reasoning provider", mutate: func(c *Config) {
			c.Reasoning.Enabled = true
			c.Reasoning.Provider = "nope"
		}, wantErr: "reasoning"},
		{name: "no embedding model", mutate: func(c *Config) { c.Embedding.Model = "" }, wantErr: "model is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "ops", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ops sslmode=disable", pg.DSN())

	pg.URL = "postgres://u:p@db/ops"
	assert.Equal(t, "postgres://u:p@db/ops", pg.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Path: "./data/x.db"}
	assert.Equal(t, "./data/x.db", lite.DSN())
}
