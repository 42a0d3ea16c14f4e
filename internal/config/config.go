// Package config assembles the runtime configuration from an optional
// TOML file overridden by environment variables. The resulting struct
// is built once in main and passed into each component.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds everything the server and CLI need.
type Config struct {
	// OpenAI-compatible model server (e.g. a local Ollama at /v1).
	LLMBaseURL string `toml:"llm_base_url"`
	LLMAPIKey  string `toml:"llm_api_key"`
	EmbedModel string `toml:"embed_model"`
	ChatModel  string `toml:"chat_model"`
	EmbedDim   int    `toml:"embed_dim"`

	// Vector store.
	QdrantHost   string `toml:"qdrant_host"`
	QdrantPort   int    `toml:"qdrant_port"`
	QdrantAPIKey string `toml:"qdrant_api_key"`
	Collection   string `toml:"collection"`

	// Content pipeline.
	CMSBaseURL   string   `toml:"cms_base_url"`
	ContentTypes []string `toml:"content_types"`
	ChunkSize    int      `toml:"chunk_size"`
	ChunkOverlap int      `toml:"chunk_overlap"`

	// Infrastructure.
	NATSURL    string `toml:"nats_url"`
	StateDir   string `toml:"state_dir"`
	AdminToken string `toml:"admin_token"`
	Port       string `toml:"port"`
	Debug      bool   `toml:"debug"`

	// Per-document pipeline timeout, expressed in seconds in TOML.
	DocTimeoutSeconds int           `toml:"doc_timeout_seconds"`
	DocTimeout        time.Duration `toml:"-"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		LLMBaseURL:   "http://localhost:11434/v1",
		EmbedModel:   "nomic-embed-text",
		ChatModel:    "llama3.2:3b",
		EmbedDim:     768,
		QdrantHost:   "localhost",
		QdrantPort:   6334,
		Collection:   "ragsync_content",
		ContentTypes: []string{"post", "page"},
		ChunkSize:    800,
		ChunkOverlap: 100,
		NATSURL:      "nats://localhost:4222",
		Port:         "8080",
		DocTimeout:   60 * time.Second,
	}
}

// Load builds the configuration: defaults, then the TOML file at path
// (missing file is fine), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if cfg.DocTimeoutSeconds > 0 {
		cfg.DocTimeout = time.Duration(cfg.DocTimeoutSeconds) * time.Second
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.LLMBaseURL, "RAGSYNC_LLM_URL")
	setStr(&c.LLMAPIKey, "RAGSYNC_LLM_KEY")
	setStr(&c.EmbedModel, "RAGSYNC_EMBED_MODEL")
	setStr(&c.ChatModel, "RAGSYNC_CHAT_MODEL")
	setInt(&c.EmbedDim, "RAGSYNC_EMBED_DIM")

	setStr(&c.QdrantHost, "QDRANT_HOST")
	setInt(&c.QdrantPort, "QDRANT_PORT")
	setStr(&c.QdrantAPIKey, "QDRANT_API_KEY")
	setStr(&c.Collection, "RAGSYNC_COLLECTION")

	setStr(&c.CMSBaseURL, "RAGSYNC_CMS_URL")
	if v := os.Getenv("RAGSYNC_CONTENT_TYPES"); v != "" {
		var types []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		c.ContentTypes = types
	}
	setInt(&c.ChunkSize, "RAGSYNC_CHUNK_SIZE")
	setInt(&c.ChunkOverlap, "RAGSYNC_CHUNK_OVERLAP")

	setStr(&c.NATSURL, "RAGSYNC_NATS_URL")
	setStr(&c.StateDir, "RAGSYNC_STATE_DIR")
	setStr(&c.AdminToken, "RAGSYNC_ADMIN_TOKEN")
	setStr(&c.Port, "PORT")
	if v := os.Getenv("RAGSYNC_DEBUG"); v != "" {
		c.Debug = v == "true" || v == "1"
	}
	if v := os.Getenv("RAGSYNC_DOC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DocTimeout = d
		}
	}
}

// Validate rejects configurations that cannot work before any service
// is contacted.
func (c *Config) Validate() error {
	if c.CMSBaseURL == "" {
		return fmt.Errorf("cms_base_url is required (RAGSYNC_CMS_URL)")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size)")
	}
	if len(c.ContentTypes) == 0 {
		return fmt.Errorf("content_types must not be empty")
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("embed_dim must be positive")
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}
