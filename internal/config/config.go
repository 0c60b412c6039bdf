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

// Config holds all runtime configuration for the wallet engine.
type Config struct {
	Environment string

	Server     ServerConfig
	Logging    LoggingConfig
	Identity   IdentityConfig
	Auth       AuthConfig
	Hashing    HashingConfig
	Ledger     LedgerConfig
	Snapshot   SnapshotConfig
	Bucketing  BucketingConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	KMS        KMSConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// IdentityConfig carries the fixed derivation salt. Changing the salt
// after accounts exist orphans every derived identity, so it is loaded
// once and treated as immutable.
type IdentityConfig struct {
	Salt string
}

type AuthConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	Pepper            string
}

type LedgerConfig struct {
	// MaxHistoryPerAccount caps the by-account index; the oldest entry
	// is evicted when the cap is exceeded. The ledger itself is never
	// truncated.
	MaxHistoryPerAccount int
	TimeBucketSeconds    int
}

type SnapshotConfig struct {
	Backend string // "file" or "scylla"
	Dir     string
	Encrypt bool
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Enabled  bool
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// LoadConfig reads configuration from the environment, loading a .env
// file first when present.
func LoadConfig() *Config {
	loadOnce.Do(func() {
		_ = godotenv.Load()

		globalConfig = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/cache/wallet-engine/certs"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
			Identity: IdentityConfig{
				Salt: getEnv("IDENTITY_SALT", "wallet-engine-dev-salt"),
			},
			Auth: AuthConfig{
				MaxFailedAttempts: getEnvInt("AUTH_MAX_FAILED_ATTEMPTS", 5),
				LockoutDuration:   getEnvDuration("AUTH_LOCKOUT_DURATION", time.Hour),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 64*1024),
				Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 3),
				Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
				Pepper:            getEnv("HASHING_PEPPER", "wallet-engine-dev-pepper"),
			},
			Ledger: LedgerConfig{
				MaxHistoryPerAccount: getEnvInt("LEDGER_MAX_HISTORY_PER_ACCOUNT", 1000),
				TimeBucketSeconds:    getEnvInt("LEDGER_TIME_BUCKET_SECONDS", 3600),
			},
			Snapshot: SnapshotConfig{
				Backend: getEnv("SNAPSHOT_BACKEND", "file"),
				Dir:     getEnv("SNAPSHOT_DIR", "./data/snapshots"),
				Encrypt: getEnvBool("SNAPSHOT_ENCRYPT", true),
			},
			Bucketing: BucketingConfig{
				UserBuckets:  getEnvInt("BUCKETING_USER_BUCKETS", 64),
				EventBuckets: getEnvInt("BUCKETING_EVENT_BUCKETS", 16),
			},
			Redis: RedisConfig{
				Enabled:  getEnvBool("REDIS_ENABLED", false),
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Enabled:  getEnvBool("SCYLLA_ENABLED", false),
				Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "wallet_engine"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Enabled: getEnvBool("KAFKA_ENABLED", false),
				Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
				Topic:   getEnv("KAFKA_LEDGER_TOPIC", "wallet.ledger.events"),
			},
			Clickhouse: ClickhouseConfig{
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: getEnv("CLICKHOUSE_DATABASE", "wallet_analytics"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "us-east-1"),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
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

// Validate rejects configurations that would corrupt derived state.
func (c *Config) Validate() error {
	if c.Identity.Salt == "" {
		return fmt.Errorf("identity salt must not be empty")
	}
	if c.Auth.MaxFailedAttempts <= 0 {
		return fmt.Errorf("auth max failed attempts must be positive")
	}
	if c.Ledger.MaxHistoryPerAccount <= 0 {
		return fmt.Errorf("ledger history cap must be positive")
	}
	if c.Ledger.TimeBucketSeconds <= 0 {
		return fmt.Errorf("ledger time bucket must be positive")
	}
	if c.Snapshot.Backend != "file" && c.Snapshot.Backend != "scylla" {
		return fmt.Errorf("unknown snapshot backend: %s", c.Snapshot.Backend)
	}
	if c.IsProduction() && c.Identity.Salt == "wallet-engine-dev-salt" {
		return fmt.Errorf("refusing to run in production with the development identity salt")
	}
	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
