// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Corpus, Index, Ranking, Output sinks, Server, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ranking model names accepted by RankingConfig.Model.
const (
	ModelVSM  = "vsm"
	ModelBM25 = "bm25"
)

// Config is the top-level application configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	Index   IndexConfig   `yaml:"index"`
	Ranking RankingConfig `yaml:"ranking"`
	Output  OutputConfig  `yaml:"output"`
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Search  SearchConfig  `yaml:"search"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CorpusConfig points at the preprocessed document and query token files.
// QueryFilter is one of "all", "odd" or "even" and selects queries by the
// parity of their numeric id. The default "odd" keeps the test half of the
// query set.
type CorpusConfig struct {
	DocumentsPath string `yaml:"documentsPath"`
	QueriesPath   string `yaml:"queriesPath"`
	QueryFilter   string `yaml:"queryFilter"`
}

// IndexConfig controls where the posting store is persisted, how it is
// encoded, and how many shards a fresh build is split across.
type IndexConfig struct {
	Path        string `yaml:"path"`
	Codec       string `yaml:"codec"`
	Compression string `yaml:"compression"`
	Shards      int    `yaml:"shards"`
	Rebuild     bool   `yaml:"rebuild"`
}

// RankingConfig selects the ranking model and batch run parameters.
type RankingConfig struct {
	Model   string     `yaml:"model"`
	TopK    int        `yaml:"topK"`
	RunTag  string     `yaml:"runTag"`
	Workers int        `yaml:"workers"`
	BM25    BM25Config `yaml:"bm25"`
}

// BM25Config holds the BM25 free parameters. AvgDocLength of zero means the
// corpus mean. IDF is "plus-one" or "classic".
type BM25Config struct {
	K1           float64 `yaml:"k1"`
	B            float64 `yaml:"b"`
	AvgDocLength float64 `yaml:"avgDocLength"`
	IDF          string  `yaml:"idf"`
}

// OutputConfig lists the sinks a batch run is emitted to. The TREC run file
// is always written; Kafka, Postgres and SQLite are opt-in.
type OutputConfig struct {
	ResultsPath string         `yaml:"resultsPath"`
	SinkTimeout time.Duration  `yaml:"sinkTimeout"`
	Kafka       KafkaConfig    `yaml:"kafka"`
	Postgres    PostgresConfig `yaml:"postgres"`
	SQLite      SQLiteConfig   `yaml:"sqlite"`
}

// SQLiteConfig enables a local single-file run archive with the same schema
// as the Postgres one.
type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// KafkaConfig holds Kafka broker and topic settings for the run sink.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run archive.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ServerConfig holds HTTP server settings for the search service.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SearchConfig controls request limits and the in-process result cache.
type SearchConfig struct {
	DefaultLimit   int `yaml:"defaultLimit"`
	MaxResults     int `yaml:"maxResults"`
	LocalCacheSize int `yaml:"localCacheSize"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Corpus: CorpusConfig{
			DocumentsPath: "data/preprocessed_documents.json",
			QueriesPath:   "data/preprocessed_queries.json",
			QueryFilter:   "odd",
		},
		Index: IndexConfig{
			Path:        "data/inverted_index.json",
			Codec:       "json",
			Compression: "none",
			Shards:      1,
		},
		Ranking: RankingConfig{
			Model:   ModelVSM,
			TopK:    100,
			Workers: 4,
			BM25: BM25Config{
				K1:  1.5,
				B:   0.75,
				IDF: "plus-one",
			},
		},
		Output: OutputConfig{
			ResultsPath: "Results",
			SinkTimeout: 30 * time.Second,
			Kafka: KafkaConfig{
				Brokers:       []string{"localhost:9092"},
				Topic:         "ranking-runs",
				ConsumerGroup: "docrank-evaluate",
			},
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "docrank",
				User:            "docrank",
				Password:        "localdev",
				SSLMode:         "disable",
				MaxOpenConns:    5,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
			SQLite: SQLiteConfig{
				Path: "data/runs.db",
			},
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxResults:     1000,
			LocalCacheSize: 1024,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// RunTagOrDefault returns the configured run tag, or a per-model default.
func (r RankingConfig) RunTagOrDefault() string {
	if r.RunTag != "" {
		return r.RunTag
	}
	if r.Model == ModelBM25 {
		return "bm25"
	}
	return "vsm_tfidf"
}

// Validate rejects values no component can act on.
func (c *Config) Validate() error {
	switch c.Ranking.Model {
	case ModelVSM, ModelBM25:
	default:
		return fmt.Errorf("ranking.model must be %q or %q, got %q", ModelVSM, ModelBM25, c.Ranking.Model)
	}
	if c.Ranking.TopK < 0 {
		return fmt.Errorf("ranking.topK must not be negative, got %d", c.Ranking.TopK)
	}
	if strings.ContainsAny(c.Ranking.RunTag, " \t\n") {
		return fmt.Errorf("ranking.runTag must not contain whitespace, got %q", c.Ranking.RunTag)
	}
	if c.Ranking.BM25.K1 < 0 || c.Ranking.BM25.B < 0 || c.Ranking.BM25.AvgDocLength < 0 {
		return fmt.Errorf("ranking.bm25 parameters must not be negative")
	}
	switch c.Ranking.BM25.IDF {
	case "plus-one", "classic":
	default:
		return fmt.Errorf("ranking.bm25.idf must be \"plus-one\" or \"classic\", got %q", c.Ranking.BM25.IDF)
	}
	switch c.Index.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("index.codec must be \"json\" or \"cbor\", got %q", c.Index.Codec)
	}
	switch c.Index.Compression {
	case "none", "zstd", "lz4":
	default:
		return fmt.Errorf("index.compression must be none, zstd or lz4, got %q", c.Index.Compression)
	}
	switch c.Corpus.QueryFilter {
	case "all", "odd", "even":
	default:
		return fmt.Errorf("corpus.queryFilter must be all, odd or even, got %q", c.Corpus.QueryFilter)
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index.path is required")
	}
	return nil
}

// applyEnvOverrides reads DR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DR_CORPUS_DOCUMENTS"); v != "" {
		cfg.Corpus.DocumentsPath = v
	}
	if v := os.Getenv("DR_CORPUS_QUERIES"); v != "" {
		cfg.Corpus.QueriesPath = v
	}
	if v := os.Getenv("DR_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("DR_INDEX_CODEC"); v != "" {
		cfg.Index.Codec = v
	}
	if v := os.Getenv("DR_INDEX_COMPRESSION"); v != "" {
		cfg.Index.Compression = v
	}
	if v := os.Getenv("DR_INDEX_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Shards = n
		}
	}
	if v := os.Getenv("DR_RANKING_MODEL"); v != "" {
		cfg.Ranking.Model = v
	}
	if v := os.Getenv("DR_RANKING_TOPK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ranking.TopK = n
		}
	}
	if v := os.Getenv("DR_RANKING_RUN_TAG"); v != "" {
		cfg.Ranking.RunTag = v
	}
	if v := os.Getenv("DR_OUTPUT_RESULTS"); v != "" {
		cfg.Output.ResultsPath = v
	}
	if v := os.Getenv("DR_KAFKA_BROKERS"); v != "" {
		cfg.Output.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DR_POSTGRES_HOST"); v != "" {
		cfg.Output.Postgres.Host = v
	}
	if v := os.Getenv("DR_POSTGRES_PASSWORD"); v != "" {
		cfg.Output.Postgres.Password = v
	}
	if v := os.Getenv("DR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}
