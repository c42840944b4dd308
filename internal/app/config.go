package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Cache drivers.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Notification sinks.
const (
	SinkLog   = "log"
	SinkHTTP  = "http"
	SinkKafka = "kafka"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	AdminAPIKey  string `usage:"Admin API key registered on startup by the memory store" flag:"admin-api-key"`
	Storage      StorageConfig
	Cache        CacheConfig
	Fulfillment  FulfillmentConfig
	Notification NotificationConfig
	Graceful     GracefulConfig
}

// StorageConfig selects the order and product store.
type StorageConfig struct {
	Driver string `default:"postgres" usage:"Store driver: postgres or memory"`
}

// CacheConfig selects the read cache backend.
type CacheConfig struct {
	Driver     string        `default:"memory" usage:"Cache driver: memory or redis"`
	RedisURL   string        `usage:"Redis URL (ORDERS_CACHE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Prefix     string        `default:"orders" usage:"Redis key prefix"`
	TTL        time.Duration `default:"10m" usage:"Redis entry lifetime"`
	MaxEntries int           `default:"10000" usage:"Max entries per namespace for the memory cache, 0 is unbounded"`
}

// FulfillmentConfig sizes the background status transition pool.
type FulfillmentConfig struct {
	Workers       int           `default:"4" usage:"Fulfillment workers"`
	QueueSize     int           `default:"256" usage:"Fulfillment queue capacity"`
	Timeout       time.Duration `default:"10s" usage:"Per order transition timeout"`
	SweepInterval time.Duration `default:"1m" usage:"Period of the sweep requeueing orders stuck in PROCESSING"`
}

// NotificationConfig selects where order summaries are sent.
type NotificationConfig struct {
	Sink      string        `default:"log" usage:"Notification sink: log, http or kafka"`
	Endpoint  string        `usage:"Webhook URL for the http sink"`
	Timeout   time.Duration `default:"5s" usage:"Per notification delivery timeout"`
	Workers   int           `default:"2" usage:"Notification workers"`
	QueueSize int           `default:"1024" usage:"Notification queue capacity"`
	Brokers   []string      `usage:"Kafka seed brokers for the kafka sink"`
	Topic     string        `default:"orders.created" usage:"Kafka topic for the kafka sink"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the ORDERS_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Cache.RedisURL == "" {
		c.Cache.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate checks that the selected drivers have what they need.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Cache.Driver {
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New("redis URL is required: set ORDERS_CACHE_REDIS_URL or REDIS_URL")
		}
	case CacheMemory:
	default:
		return errors.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	switch c.Notification.Sink {
	case SinkHTTP:
		if c.Notification.Endpoint == "" {
			return errors.New("notification endpoint is required for the http sink")
		}
	case SinkKafka:
		if len(c.Notification.Brokers) == 0 {
			return errors.New("kafka brokers are required for the kafka sink")
		}
	case SinkLog:
	default:
		return errors.Errorf("unknown notification sink %q", c.Notification.Sink)
	}
	return nil
}
