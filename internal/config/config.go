// Package config loads rag configuration from defaults, YAML files and
// RAG_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// Config is the complete rag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// StoreConfig locates persisted state.
type StoreConfig struct {
	// DataDir holds documents.db, the dense snapshot and the badger cache.
	// Relative paths resolve against the project root.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// SnapshotInterval controls how often the serve command snapshots the
	// dense index. "0" disables periodic snapshots.
	SnapshotInterval string `yaml:"snapshot_interval" json:"snapshot_interval"`
}

// RetrievalConfig tunes hybrid search.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k" json:"top_k"`
	DenseWeight   float64 `yaml:"dense_weight" json:"dense_weight"`
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	// RRFConstant is the k in w/(k+rank).
	RRFConstant  int `yaml:"rrf_constant" json:"rrf_constant"`
	MinTrainSize int `yaml:"min_train_size" json:"min_train_size"`
	HNSWM        int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is static, ollama or openai.
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Host       string `yaml:"host" json:"host"`
	APIKey     string `yaml:"api_key,omitempty" json:"-"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	Timeout    string `yaml:"timeout" json:"timeout"`
}

// GenerationConfig selects the text generation provider.
type GenerationConfig struct {
	// Provider is ollama, openai or echo.
	Provider    string  `yaml:"provider" json:"provider"`
	Model       string  `yaml:"model" json:"model"`
	Host        string  `yaml:"host" json:"host"`
	APIKey      string  `yaml:"api_key,omitempty" json:"-"`
	Timeout     string  `yaml:"timeout" json:"timeout"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	// Safety is the content blocking level: none, low, medium or high.
	// Empty keeps the provider default.
	Safety      string  `yaml:"safety,omitempty" json:"safety,omitempty"`

	// BreakerFailures consecutive failures open the circuit.
	BreakerFailures uint32 `yaml:"breaker_failures" json:"breaker_failures"`
	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown string `yaml:"breaker_cooldown" json:"breaker_cooldown"`
}

// ClassifierConfig selects how queries are routed.
type ClassifierConfig struct {
	// Mode is pattern, llm or hybrid.
	Mode      string `yaml:"mode" json:"mode"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	// Backend is memory or badger.
	Backend    string `yaml:"backend" json:"backend"`
	TTL        string `yaml:"ttl" json:"ttl"`
	MaxEntries int    `yaml:"max_entries" json:"max_entries"`
}

// IngestConfig configures file loading and chunking.
type IngestConfig struct {
	// Chunker is fixed or sentence.
	Chunker       string `yaml:"chunker" json:"chunker"`
	ChunkSize     int    `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	Workers       int    `yaml:"workers" json:"workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr     string  `yaml:"addr" json:"addr"`
	AdminKey string  `yaml:"admin_key,omitempty" json:"-"`
	// RateLimit is requests per second per process. 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	Burst     int     `yaml:"burst" json:"burst"`
	LogLevel  string  `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			DataDir:          ".rag",
			SnapshotInterval: "5m",
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			DenseWeight:   0.5,
			LexicalWeight: 0.5,
			RRFConstant:   60,
			MinTrainSize:  4,
			HNSWM:         16,
			HNSWEfSearch:  20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			Host:       "http://localhost:11434",
			Dimensions: 256,
			CacheSize:  1000,
			Timeout:    "30s",
		},
		Generation: GenerationConfig{
			Provider:        "ollama",
			Model:           "llama3.2",
			Host:            "http://localhost:11434",
			Timeout:         "30s",
			Temperature:     0.7,
			MaxTokens:       512,
			BreakerFailures: 5,
			BreakerCooldown: "30s",
		},
		Classifier: ClassifierConfig{
			Mode:      "pattern",
			CacheSize: 1000,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        "1h",
			MaxEntries: 10000,
		},
		Ingest: IngestConfig{
			Chunker:       "fixed",
			ChunkSize:     250,
			ChunkOverlap:  50,
			Workers:       runtime.NumCPU(),
			WatchDebounce: "500ms",
		},
		Server: ServerConfig{
			Addr:      ":8080",
			RateLimit: 10,
			Burst:     20,
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/rag/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/rag/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "rag", "config.yaml")
	}
	return filepath.Join(home, ".config", "rag", "config.yaml")
}

// ProjectConfigPath returns the project config file in dir, preferring
// .rag.yaml over .rag.yml. The .yaml path is returned when neither exists.
func ProjectConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ".rag.yaml")
	if fileExists(yamlPath) {
		return yamlPath
	}
	if ymlPath := filepath.Join(dir, ".rag.yml"); fileExists(ymlPath) {
		return ymlPath
	}
	return yamlPath
}

// Load builds the configuration for the project in dir. Later layers win:
//  1. defaults
//  2. user config
//  3. project config (.rag.yaml or .rag.yml in dir)
//  4. RAG_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if projectPath := ProjectConfigPath(dir); fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, rerrors.ConfigError("invalid configuration", err).
			WithSuggestion("Run 'rag config show' to inspect the effective configuration")
	}
	return cfg, nil
}

// loadYAML decodes path over the current values. Keys absent from the
// file keep their current value, so explicit zeros are honored.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies RAG_* environment variable overrides.
// Unparseable numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}

	setString("RAG_DATA_DIR", &c.Store.DataDir)

	setInt("RAG_TOP_K", &c.Retrieval.TopK)
	setFloat("RAG_DENSE_WEIGHT", &c.Retrieval.DenseWeight)
	setFloat("RAG_LEXICAL_WEIGHT", &c.Retrieval.LexicalWeight)
	setInt("RAG_RRF_CONSTANT", &c.Retrieval.RRFConstant)
	setInt("RAG_MIN_TRAIN_SIZE", &c.Retrieval.MinTrainSize)

	setString("RAG_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	setString("RAG_EMBEDDINGS_MODEL", &c.Embeddings.Model)
	setString("RAG_GENERATION_PROVIDER", &c.Generation.Provider)
	setString("RAG_GENERATION_MODEL", &c.Generation.Model)
	setString("RAG_GENERATION_TIMEOUT", &c.Generation.Timeout)

	// One host and one key usually serve both providers.
	if v := os.Getenv("RAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
		c.Generation.Host = v
	}
	if v := os.Getenv("RAG_OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
		c.Generation.APIKey = v
	}

	setString("RAG_CLASSIFIER_MODE", &c.Classifier.Mode)
	setString("RAG_CACHE_BACKEND", &c.Cache.Backend)
	setString("RAG_CACHE_TTL", &c.Cache.TTL)

	setString("RAG_SERVER_ADDR", &c.Server.Addr)
	setString("RAG_ADMIN_KEY", &c.Server.AdminKey)
	setString("RAG_LOG_LEVEL", &c.Server.LogLevel)
}

// Validate returns the first problem found in the configuration.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.TopK < 1 || r.TopK > 100 {
		return fmt.Errorf("retrieval.top_k must be between 1 and 100, got %d", r.TopK)
	}
	if r.DenseWeight < 0 || r.DenseWeight > 1 {
		return fmt.Errorf("retrieval.dense_weight must be between 0 and 1, got %f", r.DenseWeight)
	}
	if r.LexicalWeight < 0 || r.LexicalWeight > 1 {
		return fmt.Errorf("retrieval.lexical_weight must be between 0 and 1, got %f", r.LexicalWeight)
	}
	if sum := r.DenseWeight + r.LexicalWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("retrieval.dense_weight + retrieval.lexical_weight must equal 1.0, got %.2f", sum)
	}
	if r.RRFConstant <= 0 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", r.RRFConstant)
	}
	if r.MinTrainSize < 1 {
		return fmt.Errorf("retrieval.min_train_size must be at least 1, got %d", r.MinTrainSize)
	}

	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "static", "ollama", "openai"); err != nil {
		return err
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if err := oneOf("generation.provider", c.Generation.Provider, "ollama", "openai", "echo"); err != nil {
		return err
	}
	if c.Generation.Safety != "" {
		if err := oneOf("generation.safety", c.Generation.Safety, "none", "low", "medium", "high"); err != nil {
			return err
		}
	}
	if err := oneOf("classifier.mode", c.Classifier.Mode, "pattern", "llm", "hybrid"); err != nil {
		return err
	}
	if err := oneOf("cache.backend", c.Cache.Backend, "memory", "badger"); err != nil {
		return err
	}
	if err := oneOf("ingest.chunker", c.Ingest.Chunker, "fixed", "sentence"); err != nil {
		return err
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	}
	if err := oneOf("server.log_level", c.Server.LogLevel, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be non-negative, got %f", c.Server.RateLimit)
	}

	durations := map[string]string{
		"store.snapshot_interval":     c.Store.SnapshotInterval,
		"embeddings.timeout":          c.Embeddings.Timeout,
		"generation.timeout":          c.Generation.Timeout,
		"generation.breaker_cooldown": c.Generation.BreakerCooldown,
		"cache.ttl":                   c.Cache.TTL,
		"ingest.watch_debounce":       c.Ingest.WatchDebounce,
	}
	for key, v := range durations {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

// parseDuration accepts Go duration strings, bare seconds ("3600") and
// the empty string (zero).
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// mustDuration is used by accessors on validated configs.
func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// CacheTTL returns the parsed cache TTL.
func (c *Config) CacheTTL() time.Duration { return mustDuration(c.Cache.TTL) }

// GenerationTimeout returns the parsed generation deadline.
func (c *Config) GenerationTimeout() time.Duration { return mustDuration(c.Generation.Timeout) }

// EmbeddingTimeout returns the parsed embedding request timeout.
func (c *Config) EmbeddingTimeout() time.Duration { return mustDuration(c.Embeddings.Timeout) }

// BreakerCooldown returns how long an open circuit stays open.
func (c *Config) BreakerCooldown() time.Duration { return mustDuration(c.Generation.BreakerCooldown) }

// WatchDebounce returns the file watcher debounce window.
func (c *Config) WatchDebounce() time.Duration { return mustDuration(c.Ingest.WatchDebounce) }

// SnapshotInterval returns the dense snapshot period. Zero disables it.
func (c *Config) SnapshotInterval() time.Duration { return mustDuration(c.Store.SnapshotInterval) }

// DataPath resolves the data directory against root.
func (c *Config) DataPath(root string) string {
	if filepath.IsAbs(c.Store.DataDir) {
		return c.Store.DataDir
	}
	return filepath.Join(root, c.Store.DataDir)
}

// WriteYAML writes the configuration to path, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .rag.yaml, .rag.yml,
// .rag directory or .git directory. It returns the absolute startDir when
// nothing is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := os.Stat(absDir); err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", absDir, err)
	}

	current := absDir
	for {
		if fileExists(filepath.Join(current, ".rag.yaml")) ||
			fileExists(filepath.Join(current, ".rag.yml")) ||
			dirExists(filepath.Join(current, ".rag")) ||
			dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
