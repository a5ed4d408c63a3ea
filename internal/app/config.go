package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"ctfoj/internal/common/cache"
	"ctfoj/internal/common/db"
	"ctfoj/internal/common/http/middleware"
	"ctfoj/internal/common/mq"
	"ctfoj/internal/common/storage"
	"ctfoj/internal/event"
	"ctfoj/internal/sandbox"
	"ctfoj/internal/scoreboard"
	"ctfoj/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8000"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultDBTimeout       = 3 * time.Second
	defaultConsumerGroup   = "ctfoj-scoreboard"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	CORS middleware.CORSConfig `yaml:"cors"`
}

// AuthConfig holds token and login throttling settings.
type AuthConfig struct {
	JWTSecret      string        `yaml:"jwtSecret"`
	JWTIssuer      string        `yaml:"jwtIssuer"`
	AccessTokenTTL time.Duration `yaml:"accessTokenTTL"`
	LoginFailTTL   time.Duration `yaml:"loginFailTTL"`
	LoginFailLimit int           `yaml:"loginFailLimit"`
}

// RateLimitConfig bounds login attempts and flag submissions.
type RateLimitConfig struct {
	Login  middleware.RateLimitPolicy `yaml:"login"`
	Submit middleware.RateLimitPolicy `yaml:"submit"`
}

// SolvesConfig controls distribution of committed solves. With Kafka
// configured solves go to Topic and the scoreboard worker applies them,
// otherwise the board is updated in process.
type SolvesConfig struct {
	Topic         string `yaml:"topic"`
	ConsumerGroup string `yaml:"consumerGroup"`
	FeedSize      int    `yaml:"feedSize"`
}

// ChallengesConfig holds settings shared by builtin challenge classes.
type ChallengesConfig struct {
	Host                   string `yaml:"host"`
	HelloWorldBuildContext string `yaml:"helloWorldBuildContext"`
	CacheDir               string `yaml:"cacheDir"`
}

// Config is the configuration shared by every ctfoj binary.
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Logger logger.Config `yaml:"logger"`

	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`
	MinIO    storage.MinIOConfig `yaml:"minio"`

	Auth       AuthConfig          `yaml:"auth"`
	RateLimit  RateLimitConfig     `yaml:"rateLimit"`
	Solves     SolvesConfig        `yaml:"solves"`
	Scoring    scoreboard.Settings `yaml:"scoring"`
	Sandbox    sandbox.Config      `yaml:"sandbox"`
	Challenges ChallengesConfig    `yaml:"challenges"`
	DBTimeout  time.Duration       `yaml:"dbTimeout"`
}

// KafkaEnabled reports whether a broker list is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// MinIOEnabled reports whether object storage is configured.
func (c *Config) MinIOEnabled() bool {
	return c.MinIO.Endpoint != ""
}

// LoadConfig reads a YAML file and fills defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config data and fills defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := Config{Scoring: scoreboard.DefaultSettings()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis addr is required")
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultHTTPAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = defaultIdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Solves.Topic == "" {
		c.Solves.Topic = event.DefaultSolvedTopic
	}
	if c.Solves.ConsumerGroup == "" {
		c.Solves.ConsumerGroup = defaultConsumerGroup
	}
	if c.DBTimeout == 0 {
		c.DBTimeout = defaultDBTimeout
	}
	c.Scoring.ApplyDefaults()
	return nil
}
