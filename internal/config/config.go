package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	GroupID     string `mapstructure:"group_id"`
	Topic       string `mapstructure:"topic"`
	StatusTopic string `mapstructure:"status_topic"`
}

type EmailConfig struct {
	From     string        `mapstructure:"from"`
	SMTPHost string        `mapstructure:"smtp_host"`
	SMTPPort int           `mapstructure:"smtp_port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	DatabaseURL      string        `mapstructure:"database_url"`
	ServerPort       string        `mapstructure:"server_port"`
	PublicBaseURL    string        `mapstructure:"public_base_url"`
	CORSOrigin       string        `mapstructure:"cors_origin"`
	StoreCallTimeout time.Duration `mapstructure:"store_call_timeout"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
	Kafka            KafkaConfig   `mapstructure:"kafka"`
	Email            EmailConfig   `mapstructure:"email"`
	Log              LogConfig     `mapstructure:"log"`
}

var defaults = map[string]interface{}{
	"database_url":       "",
	"server_port":        "8080",
	"public_base_url":    "",
	"cors_origin":        "http://localhost:3000",
	"store_call_timeout": 10 * time.Second,
	"publish_timeout":    5 * time.Second,
	"notify_timeout":     2 * time.Minute,
	"kafka.brokers":      "localhost:9092",
	"kafka.group_id":     "claimflow-intake",
	"kafka.topic":        "claims.AEP",
	"kafka.status_topic": "",
	"email.from":         "",
	"email.smtp_host":    "localhost",
	"email.smtp_port":    587,
	"email.username":     "",
	"email.password":     "",
	"email.timeout":      30 * time.Second,
	"log.level":          "info",
	"log.format":         "console",
}

// Load reads an optional config.yaml from . or ./config, then lets
// environment variables (and a .env file, if present) override it.
// Nested keys map to env names with "." replaced by "_", e.g. KAFKA_BROKERS.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if cfg.Kafka.StatusTopic == "" {
		cfg.Kafka.StatusTopic = cfg.Kafka.Topic
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("DATABASE_URL", c.DatabaseURL)
	check("KAFKA_BROKERS", c.Kafka.Brokers)
	check("KAFKA_GROUP_ID", c.Kafka.GroupID)
	check("KAFKA_TOPIC", c.Kafka.Topic)
	check("EMAIL_FROM", c.Email.From)
	check("PUBLIC_BASE_URL", c.PublicBaseURL)
	if len(missing) > 0 {
		return errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.PublicBaseURL)
	}
	if c.StoreCallTimeout <= 0 || c.PublishTimeout <= 0 || c.NotifyTimeout <= 0 {
		return errors.New("STORE_CALL_TIMEOUT, PUBLISH_TIMEOUT and NOTIFY_TIMEOUT must be positive")
	}
	return nil
}
