package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type HTTPServer struct {
	Addr string `yaml:"address" env:"HTTP_ADDR" env-default:":8080"`
}

type Database struct {
	Host            string        `yaml:"PG_HOST" env:"PG_HOST" env-default:"localhost"`
	Port            string        `yaml:"PG_PORT" env:"PG_PORT" env-default:"5432"`
	User            string        `yaml:"PG_USER" env:"PG_USER" env-required:"true"`
	Password        string        `yaml:"PG_PASSWORD" env:"PG_PASSWORD" env-required:"true"`
	Name            string        `yaml:"PG_DBNAME" env:"PG_DBNAME" env-required:"true"`
	SSLMode         string        `yaml:"PG_SSLMODE" env:"PG_SSLMODE" env-default:"require"`
	MaxOpenConns    int           `yaml:"MAX_OPEN_CONNS" env:"PG_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `yaml:"MAX_IDLE_CONNS" env:"PG_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"CONN_MAX_LIFETIME" env:"PG_CONN_MAX_LIFETIME" env-default:"30m"`
	ConnMaxIdleTime time.Duration `yaml:"CONN_MAX_IDLE_TIME" env:"PG_CONN_MAX_IDLE_TIME" env-default:"5m"`
}

type RedisConnect struct {
	Host     string `yaml:"REDIS_HOST" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"REDIS_PORT" env:"REDIS_PORT" env-default:"6379"`
	Username string `yaml:"REDIS_USER" env:"REDIS_USER" env-default:""`
	Password string `yaml:"REDIS_PASSWORD" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"REDIS_DB" env:"REDIS_DB" env-default:"0"`
}

// CacheConfig bounds how stale a cached cart may get and how long a cache
// round trip may block a request before the store takes over.
type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"DEFAULT_TTL" env:"CACHE_DEFAULT_TTL" env-default:"30m"`
	OpTimeout  time.Duration `yaml:"OP_TIMEOUT" env:"CACHE_OP_TIMEOUT" env-default:"250ms"`
}

type ReservationConfig struct {
	TTL           time.Duration `yaml:"TTL" env:"RESERVATION_TTL" env-default:"30m"`
	SweepInterval time.Duration `yaml:"SWEEP_INTERVAL" env:"RESERVATION_SWEEP_INTERVAL" env-default:"1m"`
	MaxRetries    uint          `yaml:"MAX_RETRIES" env:"RESERVATION_MAX_RETRIES" env-default:"3"`
}

type SequenceConfig struct {
	OrderPrefix string `yaml:"ORDER_PREFIX" env:"SEQ_ORDER_PREFIX" env-default:"ORD-"`
	OrderPad    int    `yaml:"ORDER_PAD" env:"SEQ_ORDER_PAD" env-default:"6"`
	RefPrefix   string `yaml:"REF_PREFIX" env:"SEQ_REF_PREFIX" env-default:"REF-"`
	RefPad      int    `yaml:"REF_PAD" env:"SEQ_REF_PAD" env-default:"8"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
}

type Config struct {
	Env          string `yaml:"env" env:"ENV" env-required:"true"`
	Currency     string `yaml:"currency" env:"CURRENCY" env-default:"USD"`
	HTTPServer   `yaml:"http_server"`
	Database     Database          `yaml:"database"`
	RedisConnect RedisConnect      `yaml:"redis"`
	Cache        CacheConfig       `yaml:"cache"`
	Reservation  ReservationConfig `yaml:"reservation"`
	Sequence     SequenceConfig    `yaml:"sequence"`
	Telemetry    TelemetryConfig   `yaml:"telemetry"`
}

func MustLoad() *Config {

	configPath := os.Getenv("CONFIG_PATH")

	if configPath == "" {

		flags := flag.String("config", "", "path to the config file")

		flag.Parse()

		configPath = *flags

		if configPath == "" {
			log.Fatal("Config path is not set")
		}

	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can not read config file: %s", err.Error())
	}

	return &cfg
}

func (d *Database) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func (r *RedisConnect) GetDSN() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s", r.Username, r.Password, r.Host, r.Port)
}
