package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database      DatabaseConfig `yaml:"database"`
	Redis         RedisConfig    `yaml:"redis"`
	RabbitMQ      RabbitMQConfig `yaml:"rabbitmq"`
	OAuth         OAuthConfig    `yaml:"oauth"`
	API           APIConfig      `yaml:"api"`
	Sync          SyncConfig     `yaml:"sync"`
	Server        ServerConfig   `yaml:"server"`
	LogLevel      string         `yaml:"log_level"`
	EncryptionKey string         `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
}

type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
	Retry    RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type SyncConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	FanOutLimit     int           `yaml:"fan_out_limit"`
	SubmitsPerHour  int64         `yaml:"submits_per_hour"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RefreshHorizon  time.Duration `yaml:"refresh_horizon"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("encryption_key is required")
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "profile_sync"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "sync.results"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "dashboard_sync_results"
	}
	if c.API.PageSize == 0 {
		c.API.PageSize = 50
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.Retry.MaxAttempts == 0 {
		c.API.Retry.MaxAttempts = 3
	}
	if c.API.Retry.InitialBackoff == 0 {
		c.API.Retry.InitialBackoff = 1 * time.Second
	}
	if c.API.Retry.MaxBackoff == 0 {
		c.API.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Sync.Workers == 0 {
		c.Sync.Workers = 4
	}
	if c.Sync.QueueSize == 0 {
		c.Sync.QueueSize = 128
	}
	if c.Sync.FanOutLimit == 0 {
		c.Sync.FanOutLimit = 5
	}
	if c.Sync.SubmitsPerHour == 0 {
		c.Sync.SubmitsPerHour = 10
	}
	if c.Sync.JobTimeout == 0 {
		c.Sync.JobTimeout = 5 * time.Minute
	}
	if c.Sync.SyncInterval == 0 {
		c.Sync.SyncInterval = 6 * time.Hour
	}
	if c.Sync.RefreshInterval == 0 {
		c.Sync.RefreshInterval = 6 * time.Hour
	}
	if c.Sync.RefreshHorizon == 0 {
		c.Sync.RefreshHorizon = 24 * time.Hour
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
