package room

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the room server configuration, loaded from environment
// variables. An empty Password makes the room open: any join is accepted.
type Config struct {
	ListenAddr       string        `env:"LISTEN_ADDR" envDefault:":8080"`
	Password         string        `env:"ROOM_PASSWORD"`
	HistoryLimit     int           `env:"HISTORY_LIMIT" envDefault:"100"`
	WorkerPoolSize   int           `env:"WORKER_POOL_SIZE" envDefault:"256"`
	MaxConnections   int           `env:"MAX_CONNECTIONS" envDefault:"10000"`
	SendQueueSize    int           `env:"SEND_QUEUE_SIZE" envDefault:"64"`
	CommandQueueSize int           `env:"COMMAND_QUEUE_SIZE" envDefault:"1024"`
	ReadTimeout      time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	StaticDir        string        `env:"STATIC_DIR"`
	BlockedTerms     []string      `env:"BLOCKED_TERMS"` // comma-separated words/phrases dropped by the filter
	RedisAddr        string        `env:"REDIS_ADDR"`  // empty = rate limiting disabled
	NATSURL          string        `env:"NATS_URL"`    // empty = event mirror disabled
	ServerName       string        `env:"SERVER_NAME"` // identifier in logs and NATS client name
}

// LoadConfig parses the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("room: parse env: %w", err)
	}
	return cfg, nil
}
