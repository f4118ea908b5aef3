package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPGDriver = "pgdriver"
	DriverPQ       = "pq"

	StorePGVector = "pgvector"
	StoreChromem  = "chromem"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	// ChromemInMemory as CHROMEM_PATH keeps the chromem database in memory only.
	ChromemInMemory = ":memory:"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Chromem  ChromemConfig  `yaml:"chromem"`
	LLM      LLMConfig      `yaml:"llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Store    string         `yaml:"vector_store"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Name           string        `yaml:"name"`
	Driver         string        `yaml:"driver"`
	SSLMode        string        `yaml:"sslmode"`
	Debug          bool          `yaml:"debug"`
	AutoMigrate    bool          `yaml:"auto_migrate"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type ChromemConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	Key            string        `yaml:"key"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	EmbeddingURL   string        `yaml:"embedding_url"`
	ChatURL        string        `yaml:"chat_url"`
	Timeout        time.Duration `yaml:"timeout"`

	OllamaURL            string `yaml:"ollama_url"`
	OllamaModel          string `yaml:"ollama_model"`
	OllamaEmbeddingModel string `yaml:"ollama_embedding_model"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	SearchLimit  int `yaml:"search_limit"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Name:           "postgres",
			Driver:         DriverPGDriver,
			SSLMode:        "disable",
			AutoMigrate:    true,
			ConnectTimeout: 5 * time.Second,
		},
		Chromem: ChromemConfig{
			Path:       "./chromemdb",
			Collection: "files",
		},
		LLM: LLMConfig{
			Provider:       ProviderOpenAI,
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			EmbeddingURL:   "https://api.openai.com/v1/embeddings",
			ChatURL:        "https://api.openai.com/v1/chat/completions",
			Timeout:        10 * time.Second,

			OllamaURL:            "http://localhost:11434",
			OllamaModel:          "llama3.2",
			OllamaEmbeddingModel: "nomic-embed-text",
		},
		RAG: RAGConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			SearchLimit:  10,
		},
		Store:    StorePGVector,
		LogLevel: "info",
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path, a .env file in the working directory and the process environment,
// in that order of precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// a missing .env is fine; the environment may be set some other way
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("DB_HOST", &c.Database.Host)
	e.int("DB_PORT", &c.Database.Port)
	e.str("DB_USER", &c.Database.User)
	e.str("DB_PASS", &c.Database.Password)
	e.str("DB_NAME", &c.Database.Name)
	e.str("DB_DRIVER", &c.Database.Driver)
	e.str("DB_SSLMODE", &c.Database.SSLMode)
	e.bool("DB_DEBUG", &c.Database.Debug)
	e.bool("DB_AUTO_MIGRATE", &c.Database.AutoMigrate)
	e.duration("DB_CONNECT_TIMEOUT", &c.Database.ConnectTimeout)

	e.str("VECTOR_STORE", &c.Store)
	e.str("CHROMEM_PATH", &c.Chromem.Path)
	e.str("CHROMEM_COLLECTION", &c.Chromem.Collection)

	e.str("LLM_PROVIDER", &c.LLM.Provider)
	e.str("OPENAI_KEY", &c.LLM.Key)
	e.str("OPENAI_MODEL", &c.LLM.ChatModel)
	e.str("OPENAI_EMBEDDING_MODEL", &c.LLM.EmbeddingModel)
	e.str("OPENAI_EMBEDDING_URL", &c.LLM.EmbeddingURL)
	e.str("OPENAI_CHAT_URL", &c.LLM.ChatURL)
	e.duration("OPENAI_TIMEOUT", &c.LLM.Timeout)
	e.str("OLLAMA_URL", &c.LLM.OllamaURL)
	e.str("OLLAMA_MODEL", &c.LLM.OllamaModel)
	e.str("OLLAMA_EMBEDDING_MODEL", &c.LLM.OllamaEmbeddingModel)

	e.int("LLM_CHUNK_SIZE", &c.RAG.ChunkSize)
	e.int("LLM_CHUNK_OVERLAP", &c.RAG.ChunkOverlap)
	e.int("SEARCH_LIMIT", &c.RAG.SearchLimit)

	e.str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(e.errs...)
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database port must be positive, got %d", c.Database.Port))
	}
	if c.Database.Driver != DriverPGDriver && c.Database.Driver != DriverPQ {
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Store != StorePGVector && c.Store != StoreChromem {
		errs = append(errs, fmt.Errorf("unknown vector store %q", c.Store))
	}
	if c.LLM.Provider != ProviderOpenAI && c.LLM.Provider != ProviderOllama {
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm timeout must be positive, got %s", c.LLM.Timeout))
	}
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap))
	}
	if c.RAG.SearchLimit <= 0 {
		errs = append(errs, fmt.Errorf("search limit must be positive, got %d", c.RAG.SearchLimit))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy that is safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.Database.Password != "" {
		out.Database.Password = "***"
	}
	if out.LLM.Key != "" {
		out.LLM.Key = "***"
	}
	return out
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

// duration accepts a bare number of seconds or a Go duration string.
func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}
