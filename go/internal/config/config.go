package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config is the runtime configuration of the quiz gateway.
type Config struct {
	Port     string `env:"GATEWAY_PORT" envDefault:"8081"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DefaultQuestionDurationMS int `env:"DEFAULT_QUESTION_DURATION_MS" envDefault:"15000"`
	TimerGraceMS              int `env:"TIMER_GRACE_MS" envDefault:"50"`

	IdleSessionTTL time.Duration `env:"IDLE_SESSION_TTL" envDefault:"2h"`
	ReapInterval   time.Duration `env:"REAP_INTERVAL" envDefault:"1m"`

	MaxMessageBytes int64 `env:"MAX_MESSAGE_BYTES" envDefault:"65536"`

	QuestionSetsDir string `env:"QUESTION_SETS_DIR"`

	NATSURL           string `env:"NATS_URL"`
	NATSStream        string `env:"NATS_STREAM" envDefault:"QUIZ_EVENTS"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"quiz.events"`

	ArchiveEnabled bool `env:"ARCHIVE_ENABLED" envDefault:"false"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DefaultQuestionDurationMS <= 0 {
		return Config{}, fmt.Errorf("DEFAULT_QUESTION_DURATION_MS must be positive, got %d", cfg.DefaultQuestionDurationMS)
	}
	if cfg.TimerGraceMS < 0 {
		return Config{}, fmt.Errorf("TIMER_GRACE_MS must not be negative, got %d", cfg.TimerGraceMS)
	}
	if cfg.ReapInterval <= 0 {
		return Config{}, fmt.Errorf("REAP_INTERVAL must be positive, got %s", cfg.ReapInterval)
	}
	return cfg, nil
}

func (c Config) DefaultQuestionDuration() time.Duration {
	return time.Duration(c.DefaultQuestionDurationMS) * time.Millisecond
}

func (c Config) TimerGrace() time.Duration {
	return time.Duration(c.TimerGraceMS) * time.Millisecond
}

// MirrorEnabled reports whether broadcasts are copied to JetStream.
func (c Config) MirrorEnabled() bool {
	return c.NATSURL != ""
}

// Level returns the zerolog level, falling back to info for unknown names.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
