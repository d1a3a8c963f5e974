package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Streaming     StreamingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	CertFile     string
	KeyFile      string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	LifecycleTopic string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	Enabled       bool
	URL           string
	Username      string
	Password      string
	SecurityIndex string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

// StreamingConfig carries the tunables of the session/manifest core.
type StreamingConfig struct {
	SessionStore        string // "redis" or "memory", chosen explicitly
	SessionIdleTimeout  time.Duration
	ReapInterval        time.Duration
	HeartbeatInterval   time.Duration
	TokenTTL            time.Duration
	TokenSecret         string
	ResumeMinDelta      float64 // seconds of forward progress before resume moves
	CompletionThreshold float64 // percent at which resume resets to start
	MaxPlaybackSpeed    float64
	MinPlaybackSpeed    float64
	DefaultQuality      string // what 'auto' resolves to
	CDNBaseURL          string
	WatermarkOpacity    float64
}

var (
	instance *Config
	once     sync.Once
)

// LoadConfig reads .env (if present) and builds the config singleton.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		instance = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    splitAndTrim(getEnv("SCYLLA_NODES", "localhost:9042")),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "streaming"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Enabled:        getEnvBool("KAFKA_ENABLED", false),
				Brokers:        splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
				LifecycleTopic: getEnv("KAFKA_LIFECYCLE_TOPIC", "streaming.lifecycle"),
			},
			Clickhouse: ClickhouseConfig{
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: getEnv("CLICKHOUSE_DATABASE", "streaming_analytics"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Elasticsearch: ElasticsearchConfig{
				Enabled:       getEnvBool("ELASTICSEARCH_ENABLED", false),
				URL:           getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username:      getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:      getEnv("ELASTICSEARCH_PASSWORD", ""),
				SecurityIndex: getEnv("ELASTICSEARCH_SECURITY_INDEX", "streaming-security-events"),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "us-east-1"),
			},
			Bucketing: BucketingConfig{
				UserBuckets:  getEnvInt("BUCKETING_USER_BUCKETS", 256),
				EventBuckets: getEnvInt("BUCKETING_EVENT_BUCKETS", 64),
			},
			Streaming: StreamingConfig{
				SessionStore:        getEnv("STREAM_SESSION_STORE", "memory"),
				SessionIdleTimeout:  getEnvDuration("STREAM_SESSION_IDLE_TIMEOUT", 5*time.Minute),
				ReapInterval:        getEnvDuration("STREAM_REAP_INTERVAL", time.Minute),
				HeartbeatInterval:   getEnvDuration("STREAM_HEARTBEAT_INTERVAL", 10*time.Second),
				TokenTTL:            getEnvDuration("STREAM_TOKEN_TTL", 2*time.Hour),
				TokenSecret:         getEnv("STREAM_TOKEN_SECRET", ""),
				ResumeMinDelta:      getEnvFloat("STREAM_RESUME_MIN_DELTA", 5),
				CompletionThreshold: getEnvFloat("STREAM_COMPLETION_THRESHOLD", 90),
				MaxPlaybackSpeed:    getEnvFloat("STREAM_MAX_PLAYBACK_SPEED", 3.0),
				MinPlaybackSpeed:    getEnvFloat("STREAM_MIN_PLAYBACK_SPEED", 0.25),
				DefaultQuality:      getEnv("STREAM_DEFAULT_QUALITY", "720p"),
				CDNBaseURL:          getEnv("STREAM_CDN_BASE_URL", "https://cdn.example.com"),
				WatermarkOpacity:    getEnvFloat("STREAM_WATERMARK_OPACITY", 0.3),
			},
		}
	})
	return instance
}

// Get returns the config singleton, loading it on first use.
func Get() *Config {
	if instance == nil {
		return LoadConfig()
	}
	return instance
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
