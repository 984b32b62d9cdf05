package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Log       LogConfig
	Cache     CacheConfig
	Store     StoreConfig
	KeyDB     KeyDBConfig
	Auth      AuthConfig
	Inference InferenceConfig
	Directory DirectoryConfig
	Ingest    IngestConfig
	Query     QueryConfig
	Events    EventsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxBodyBytes    int64         `envconfig:"SERVER_MAX_BODY_BYTES" default:"1048576"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"barrel-market-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	// Timezone decides where a calendar day starts for deduplication.
	Timezone string `envconfig:"APP_TIMEZONE" default:"UTC"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `envconfig:"LOG_LEVEL" default:"info"`
	Format    string `envconfig:"LOG_FORMAT" default:"text"` // text or json
	Color     bool   `envconfig:"LOG_COLOR" default:"true"`
	AddSource bool   `envconfig:"LOG_ADD_SOURCE" default:"false"`

	FluentEnabled bool   `envconfig:"FLUENT_ENABLED" default:"false"`
	FluentHost    string `envconfig:"FLUENT_HOST" default:"localhost"`
	FluentPort    int    `envconfig:"FLUENT_PORT" default:"24224"`
	FluentTag     string `envconfig:"FLUENT_TAG" default:"barrel-market"`
}

// CacheConfig holds cache settings for seller lookups.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"REDIS_KEY_PREFIX" default:"barrel-market"`
}

// StoreConfig holds listing database settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"STORE_PATH" default:"./data/listings.db"`
	// PostgreSQL settings
	Host     string `envconfig:"STORE_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_PORT" default:"5432"`
	Name     string `envconfig:"STORE_NAME" default:"barrels"`
	User     string `envconfig:"STORE_USER" default:"postgres"`
	Password string `envconfig:"STORE_PASS" default:""`
	SSLMode  string `envconfig:"STORE_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"STORE_MAX_CONNS" default:"10"`
}

// KeyDBConfig holds MySQL connection settings for the api_keys table.
type KeyDBConfig struct {
	Enabled  bool   `envconfig:"KEYDB_ENABLED" default:"false"`
	Host     string `envconfig:"KEYDB_HOST" default:"localhost"`
	Port     int    `envconfig:"KEYDB_PORT" default:"3306"`
	Name     string `envconfig:"KEYDB_NAME" default:"barrels"`
	User     string `envconfig:"KEYDB_USER" default:"root"`
	Password string `envconfig:"KEYDB_PASS" default:""`
}

// AuthConfig holds the intake allow-list.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// InferenceConfig holds settings for the chat-completions service.
type InferenceConfig struct {
	BaseURL   string        `envconfig:"INFERENCE_BASE_URL" default:"https://api.together.xyz/v1"`
	Model     string        `envconfig:"INFERENCE_MODEL" default:"meta-llama/Llama-3.3-70B-Instruct-Turbo-Free"`
	MaxTokens int           `envconfig:"INFERENCE_MAX_TOKENS" default:"9000"`
	Timeout   time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"60s"`
	APIKeys   []string      `envconfig:"INFERENCE_API_KEYS" required:"true"`
}

// DirectoryConfig holds settings for the player-identity lookup.
type DirectoryConfig struct {
	BaseURL     string        `envconfig:"DIRECTORY_BASE_URL" default:"https://api.minecraftservices.com/minecraft/profile/lookup/name"`
	Timeout     time.Duration `envconfig:"DIRECTORY_TIMEOUT" default:"5s"`
	CacheTTL    time.Duration `envconfig:"DIRECTORY_CACHE_TTL" default:"24h"`
	NegativeTTL time.Duration `envconfig:"DIRECTORY_NEGATIVE_TTL" default:"10m"`
}

// IngestConfig holds batching and pacing settings.
type IngestConfig struct {
	BatchSize int           `envconfig:"INGEST_BATCH_SIZE" default:"6"`
	FlushSize int           `envconfig:"INGEST_FLUSH_SIZE" default:"6"`
	Cooldown  time.Duration `envconfig:"INGEST_BATCH_COOLDOWN" default:"60s"`
	Stagger   time.Duration `envconfig:"INGEST_ITEM_STAGGER" default:"2s"`
	// Per-credential token bucket.
	RatePerSecond float64 `envconfig:"INGEST_RATE_PER_SECOND" default:"0.5"`
	RateBurst     int     `envconfig:"INGEST_RATE_BURST" default:"6"`
}

// QueryConfig holds read-path settings.
type QueryConfig struct {
	SimilarityThreshold float64 `envconfig:"QUERY_SIMILARITY_THRESHOLD" default:"0.45"`
	DefaultPageSize     int     `envconfig:"QUERY_DEFAULT_PAGE_SIZE" default:"10"`
	MaxPageSize         int     `envconfig:"QUERY_MAX_PAGE_SIZE" default:"100"`
}

// EventsConfig holds Kafka settings for outcome events.
type EventsConfig struct {
	Enabled bool     `envconfig:"EVENTS_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic   string   `envconfig:"EVENTS_TOPIC" default:"listing-outcomes"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the MySQL data source name.
func (d *KeyDBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Location resolves the configured timezone.
func (a *AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(a.Timezone)
}

// Validate checks settings envconfig cannot express.
func (c *Config) Validate() error {
	if len(c.Inference.APIKeys) == 0 {
		return fmt.Errorf("INFERENCE_API_KEYS must list at least one key")
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.FlushSize < 1 {
		return fmt.Errorf("INGEST_FLUSH_SIZE must be positive, got %d", c.Ingest.FlushSize)
	}
	if c.Query.SimilarityThreshold < 0 || c.Query.SimilarityThreshold > 1 {
		return fmt.Errorf("QUERY_SIMILARITY_THRESHOLD must be within [0,1], got %v", c.Query.SimilarityThreshold)
	}
	if _, err := c.App.Location(); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
