package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "./configs/config.yaml"

	DefaultSourceDir   = "../BookRAG/Books"
	DefaultSummaryPath = "processing_summary.json"
	DefaultChunkSize   = 500
	DefaultOverlap     = 50
	DefaultMinChars    = 50
	DefaultBatchSize   = 100
	DefaultTopK        = 5

	DefaultStorePath      = "./chroma_db"
	DefaultCollectionName = "spiritual_books"
	DefaultPGTable        = "book_chunks"
	DefaultDimensions     = 768

	DefaultEmbedProvider = "ollama"
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultEmbedModel    = "nomic-embed-text"
)

type Config struct {
	SourceDir   string          `yaml:"source_dir"`
	SummaryPath string          `yaml:"summary_path"`
	Extensions  []string        `yaml:"extensions"`
	Chunking    ChunkingConfig  `yaml:"chunking"`
	Ingest      IngestConfig    `yaml:"ingest"`
	Query       QueryConfig     `yaml:"query"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	Store       StoreConfig     `yaml:"store"`
	Logging     LoggingConfig   `yaml:"logging"`
}

type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
	MinChars  int `yaml:"min_chars"`
}

// UnmarshalYAML keeps an explicit 0 for overlap and min_chars. An absent
// overlap defaults to 0 when chunk_size is given, else to DefaultOverlap.
func (c *ChunkingConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ChunkSize int  `yaml:"chunk_size"`
		Overlap   *int `yaml:"overlap"`
		MinChars  *int `yaml:"min_chars"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.ChunkSize = raw.ChunkSize
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	switch {
	case raw.Overlap != nil:
		c.Overlap = *raw.Overlap
	case raw.ChunkSize == 0:
		c.Overlap = DefaultOverlap
	default:
		c.Overlap = 0
	}
	c.MinChars = DefaultMinChars
	if raw.MinChars != nil {
		c.MinChars = *raw.MinChars
	}
	return nil
}

type IngestConfig struct {
	BatchSize int `yaml:"batch_size"`
}

type QueryConfig struct {
	TopK int `yaml:"top_k"`
}

// EmbeddingConfig is shared by both CLIs so ingestion and query always embed
// with the same provider and model.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // ollama, openai
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BatchSize int    `yaml:"batch_size"`
}

type StoreConfig struct {
	Driver        string         `yaml:"driver"` // chromem, pgvector
	Path          string         `yaml:"path"`
	Collection    string         `yaml:"collection"`
	Compress      bool           `yaml:"compress"`
	ExportPath    string         `yaml:"export_path"`
	EncryptionKey string         `yaml:"encryption_key"`
	Postgres      PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN        string `yaml:"dsn"`
	Password   string `yaml:"password"`
	Table      string `yaml:"table"`
	Dimensions int    `yaml:"dimensions"`
	Debug      bool   `yaml:"debug"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.SourceDir == "" {
		c.SourceDir = DefaultSourceDir
	}
	if c.SummaryPath == "" {
		c.SummaryPath = DefaultSummaryPath
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".pdf"}
	}
	// zero values inside a present chunking section are kept by UnmarshalYAML
	if c.Chunking == (ChunkingConfig{}) {
		c.Chunking = ChunkingConfig{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap, MinChars: DefaultMinChars}
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = DefaultBatchSize
	}
	if c.Query.TopK <= 0 {
		c.Query.TopK = DefaultTopK
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = DefaultEmbedProvider
	}
	if c.Embedding.Provider == "ollama" && c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = DefaultOllamaURL
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = DefaultEmbedModel
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = c.Ingest.BatchSize
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "chromem"
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.Collection == "" {
		c.Store.Collection = DefaultCollectionName
	}
	if c.Store.Postgres.Table == "" {
		c.Store.Postgres.Table = DefaultPGTable
	}
	if c.Store.Postgres.Dimensions <= 0 {
		c.Store.Postgres.Dimensions = DefaultDimensions
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.ChunkSize, c.Chunking.Overlap)
	}
	if c.Chunking.MinChars < 0 {
		return fmt.Errorf("chunking.min_chars must not be negative, got %d", c.Chunking.MinChars)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider must be \"ollama\" or \"openai\", got %q", c.Embedding.Provider)
	}
	switch c.Store.Driver {
	case "chromem":
	case "pgvector":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the pgvector driver")
		}
	default:
		return fmt.Errorf("store.driver must be \"chromem\" or \"pgvector\", got %q", c.Store.Driver)
	}
	if k := len(c.Store.EncryptionKey); k != 0 && k != 32 {
		return fmt.Errorf("store.encryption_key must be 32 bytes, got %d", k)
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extensions must start with a dot, got %q", ext)
		}
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
