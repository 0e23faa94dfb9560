package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Projector ProjectorConfig
	Snapshot  SnapshotConfig
	Outbox    OutboxConfig
	Log       LogConfig

	// StrictTransitions rejects commands that break the status transition
	// tables. Disable only for streams written before enforcement.
	StrictTransitions bool `env:"STRICT_TRANSITIONS" envDefault:"true"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"COURIER_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// AdminToken guards the on-demand projection endpoint; empty disables it.
	AdminToken string `env:"ADMIN_TOKEN"`
}

// DatabaseConfig selects the PostgreSQL backend. An empty URL runs the
// process on in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the snapshot cache. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the outbox relay target. No brokers disables the
// relay; events still accumulate in the outbox table.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	TopicPrefix       string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"courier."`
	Partitions        int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"KAFKA_REPLICATION_FACTOR" envDefault:"1"`
}

type ProjectorConfig struct {
	Interval    time.Duration `env:"PROJECTOR_INTERVAL" envDefault:"30s"`
	Parallelism int           `env:"PROJECTOR_PARALLELISM" envDefault:"8"`
}

type SnapshotConfig struct {
	// Every takes a snapshot each N versions; 0 disables snapshots.
	Every int64         `env:"SNAPSHOT_EVERY" envDefault:"50"`
	TTL   time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`
}

type OutboxConfig struct {
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

type LogConfig struct {
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Snapshot.Every < 0:
		return fmt.Errorf("SNAPSHOT_EVERY must not be negative, got %d", c.Snapshot.Every)
	case c.Outbox.BatchSize <= 0:
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.Outbox.BatchSize)
	case c.Outbox.PollInterval <= 0:
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", c.Outbox.PollInterval)
	case c.Projector.Parallelism <= 0:
		return fmt.Errorf("PROJECTOR_PARALLELISM must be positive, got %d", c.Projector.Parallelism)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	return nil
}
