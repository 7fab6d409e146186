package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       App       `yaml:"app"`
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Messaging Messaging `yaml:"messaging"`
	Retry     Retry     `yaml:"retry"`
	Welcome   Welcome   `yaml:"welcome"`
	Leave     Leave     `yaml:"leave"`
	SMTP      SMTP      `yaml:"smtp"`
}

type App struct {
	Name string `yaml:"name" env:"APP_NAME" env-default:"workforce-events"`
	Env  string `yaml:"env" env:"APP_ENV" env-default:"dev"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
}

type Postgres struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Username string `yaml:"username" env:"REDIS_USERNAME"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	ClientID    string   `yaml:"client_id" env:"KAFKA_CLIENT_ID"`
	StartOffset string   `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"first"`
}

type Messaging struct {
	// Transport is "kafka" or "memory".
	Transport         string        `yaml:"transport" env:"MESSAGING_TRANSPORT" env-default:"kafka"`
	Exchange          string        `yaml:"exchange" env:"RABBITMQ_EXCHANGE" env-default:"workforce.events"`
	DeadLetterKey     string        `yaml:"dead_letter_key" env:"RABBITMQ_DLQ" env-default:"leave.requests.dlq"`
	Durable           bool          `yaml:"durable" env:"MESSAGING_DURABLE" env-default:"true"`
	Workers           int           `yaml:"workers" env:"MESSAGING_WORKERS" env-default:"1"`
	// Prefetch bounds the deliveries one worker handles at once.
	Prefetch          int           `yaml:"prefetch" env:"MESSAGING_PREFETCH" env-default:"16"`
	Redeliveries      int           `yaml:"redeliveries" env:"MESSAGING_REDELIVERIES" env-default:"3"`
	RedeliveryBackoff time.Duration `yaml:"redelivery_backoff" env:"MESSAGING_REDELIVERY_BACKOFF" env-default:"1s"`
}

type Retry struct {
	Strategy     string `yaml:"strategy" env:"RETRY_STRATEGY" env-default:"exponential"`
	FixedDelayMS int    `yaml:"fixed_delay_ms" env:"RETRY_FIXED_DELAY_MS" env-default:"2000"`
	BaseMS       int    `yaml:"base_ms" env:"RETRY_BASE_MS" env-default:"1000"`
	CapMS        int    `yaml:"cap_ms" env:"RETRY_CAP_MS" env-default:"30000"`
}

type Welcome struct {
	Queue          string        `yaml:"queue" env:"WELCOME_QUEUE" env-default:"email.welcome"`
	MaxAttempts    int           `yaml:"max_attempts" env:"EMAIL_MAX_RETRIES" env-default:"5"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" env:"WELCOME_IDEMPOTENCY_TTL" env-default:"24h"`
}

type Leave struct {
	Queue              string        `yaml:"queue" env:"LEAVE_QUEUE" env-default:"leave.requests"`
	MaxAttempts        int           `yaml:"max_attempts" env:"LEAVE_MAX_RETRIES" env-default:"5"`
	IdempotencyTTL     time.Duration `yaml:"idempotency_ttl" env:"LEAVE_IDEMPOTENCY_TTL" env-default:"1h"`
	AutoApproveMaxDays int           `yaml:"auto_approve_max_days" env:"LEAVE_AUTO_APPROVE_MAX_DAYS" env-default:"2"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASS"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"noreply@egwu.com"`
}

// Load reads .env and .env.local, then the YAML file at path (if it exists) and finally the
// environment. Environment values override the file.
func Load(path string) (Config, error) {
	loadDotEnv(".env", ".env.local")

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
			return cfg, cfg.Validate()
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Messaging.Transport) {
	case "kafka", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown messaging transport %q", c.Messaging.Transport))
	}
	if strings.TrimSpace(c.Messaging.Exchange) == "" {
		errs = append(errs, errors.New("exchange is empty"))
	}
	if strings.TrimSpace(c.Messaging.DeadLetterKey) == "" {
		errs = append(errs, errors.New("dead-letter routing key is empty"))
	}
	if c.Messaging.Workers <= 0 {
		errs = append(errs, errors.New("messaging workers must be positive"))
	}
	if c.Messaging.Prefetch <= 0 {
		errs = append(errs, errors.New("messaging prefetch must be positive"))
	}
	if c.Retry.FixedDelayMS < 0 {
		errs = append(errs, errors.New("retry fixed delay must not be negative"))
	}
	if c.Retry.BaseMS <= 0 {
		errs = append(errs, errors.New("retry base must be positive"))
	}
	if c.Retry.CapMS <= 0 {
		errs = append(errs, errors.New("retry cap must be positive"))
	}
	if c.Welcome.MaxAttempts <= 0 {
		errs = append(errs, errors.New("welcome max attempts must be positive"))
	}
	if c.Leave.MaxAttempts <= 0 {
		errs = append(errs, errors.New("leave max attempts must be positive"))
	}
	if c.Welcome.IdempotencyTTL <= 0 || c.Leave.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}

	return errors.Join(errs...)
}
