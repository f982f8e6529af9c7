// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/Tyrowin/relaychat/internal/chatlog"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the server configuration. Defaults live in the env tags.
type Config struct {
	Addr           string `env:"RELAY_ADDR,default=127.0.0.1:8080" validate:"required,hostname_port"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO" validate:"required"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`
	MaxMessageSize int64  `env:"MAX_MESSAGE_SIZE,default=65536" validate:"gt=0"`
	SendBufferSize int    `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`

	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=50" validate:"gt=0"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`

	PongWait        time.Duration `env:"PONG_WAIT,default=60s" validate:"gt=0"`
	PingInterval    time.Duration `env:"PING_INTERVAL,default=54s" validate:"gt=0,ltfield=PongWait"`
	WriteWait       time.Duration `env:"WRITE_WAIT,default=10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	// AnnounceJoinsImmediately broadcasts join notices on admission instead of
	// holding them until the joined connection's next chat message.
	AnnounceJoinsImmediately bool `env:"ANNOUNCE_JOINS_IMMEDIATELY,default=false"`

	MessageLogBackend    string `env:"MESSAGE_LOG_BACKEND,default=file" validate:"oneof=file badger"`
	MessageLogPath       string `env:"MESSAGE_LOG_PATH,default=message_log.txt" validate:"required"`
	MessageLogMaxSizeMB  int    `env:"MESSAGE_LOG_MAX_SIZE_MB,default=100" validate:"gte=0"`
	MessageLogMaxBackups int    `env:"MESSAGE_LOG_MAX_BACKUPS,default=3" validate:"gte=0"`
	MessageLogMaxAgeDays int    `env:"MESSAGE_LOG_MAX_AGE_DAYS,default=28" validate:"gte=0"`
	MessageLogCompress   bool   `env:"MESSAGE_LOG_COMPRESS,default=false"`
}

var validate = validator.New()

// NewConfig returns a Config populated with defaults only.
func NewConfig() Config {
	cfg, err := ParseConfig(env.EnvSet{})
	if err != nil {
		// defaults are constants; failing here is a programming error
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return cfg
}

// LoadConfig reads the configuration from the process environment, after
// loading a .env file from the working directory if there is one.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, cfg.Validate()
}

// ParseConfig builds a Config from an explicit variable set.
func ParseConfig(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS into its trimmed, non-empty entries.
func (c Config) Origins() []string {
	var origins []string
	for _, part := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (c Config) SinkOptions() chatlog.Options {
	return chatlog.Options{
		Backend:    c.MessageLogBackend,
		Path:       c.MessageLogPath,
		MaxSizeMB:  c.MessageLogMaxSizeMB,
		MaxBackups: c.MessageLogMaxBackups,
		MaxAgeDays: c.MessageLogMaxAgeDays,
		Compress:   c.MessageLogCompress,
	}
}
