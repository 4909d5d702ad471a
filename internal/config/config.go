package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends accepted in StoreConfig.Backend
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Store      StoreConfig      `json:"store"`
	Redis      RedisConfig      `json:"redis"`
	AWS        AWSConfig        `json:"aws"`
	Security   SecurityConfig   `json:"security"`
	Onboarding OnboardingConfig `json:"onboarding"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `json:"host" env:"SERVER_HOST"`
	Port           int           `json:"port" env:"SERVER_PORT"`
	ReadTimeout    time.Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	RequestTimeout time.Duration `json:"request_timeout" env:"SERVER_REQUEST_TIMEOUT"`
	AllowedOrigins []string      `json:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS" envSeparator:","`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host" env:"DATABASE_HOST"`
	Port           int           `json:"port" env:"DATABASE_PORT"`
	User           string        `json:"user" env:"DATABASE_USER"`
	Password       string        `json:"password" env:"DATABASE_PASSWORD"`
	DBName         string        `json:"db_name" env:"DATABASE_DBNAME"`
	SSLMode        string        `json:"ssl_mode" env:"DATABASE_SSLMODE"`
	MaxConnections int           `json:"max_connections" env:"DATABASE_MAX_CONNECTIONS"`
	MaxIdleConns   int           `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	MaxLifetime    time.Duration `json:"max_lifetime" env:"DATABASE_MAX_LIFETIME"`
	AutoMigrate    bool          `json:"auto_migrate" env:"DATABASE_AUTO_MIGRATE"`
}

// StoreConfig selects where onboarding state is persisted
type StoreConfig struct {
	Backend string `json:"backend" env:"STORE_BACKEND"`
}

type RedisConfig struct {
	Addr     string        `json:"addr" env:"REDIS_ADDR"`
	Password string        `json:"password" env:"REDIS_PASSWORD"`
	DB       int           `json:"db" env:"REDIS_DB"`
	Prefix   string        `json:"prefix" env:"REDIS_PREFIX"`
	TTL      time.Duration `json:"ttl" env:"REDIS_TTL"`
}

// AWSConfig configures DynamoDB, SES and SNS. Empty SES sender or SNS topic
// disables the matching hook.
type AWSConfig struct {
	Region          string `json:"region" env:"AWS_REGION"`
	Endpoint        string `json:"endpoint" env:"AWS_ENDPOINT_URL"`
	AccessKeyID     string `json:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTable     string `json:"dynamo_table" env:"AWS_DYNAMO_TABLE"`
	SESFromAddress  string `json:"ses_from_address" env:"AWS_SES_FROM_ADDRESS"`
	SNSTopicARN     string `json:"sns_topic_arn" env:"AWS_SNS_TOPIC_ARN"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string `json:"jwt_issuer" env:"JWT_ISSUER"`
}

type OnboardingConfig struct {
	HookTimeout  time.Duration `json:"hook_timeout" env:"ONBOARDING_HOOK_TIMEOUT"`
	DefaultTools []string      `json:"default_tools" env:"ONBOARDING_DEFAULT_TOOLS" envSeparator:","`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level" env:"LOG_LEVEL"`
	Development bool   `json:"development" env:"LOG_DEVELOPMENT"`
}

// Default returns the configuration used when no file or environment is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			DBName:         "bizhub_platform",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
			AutoMigrate:    true,
		},
		Store: StoreConfig{Backend: StorePostgres},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "onboarding:state:",
		},
		AWS: AWSConfig{
			Region:      "us-east-1",
			DynamoTable: "onboarding_states",
		},
		Security: SecurityConfig{JWTIssuer: "bizhub"},
		Onboarding: OnboardingConfig{
			HookTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from file and environment variables.
// Values from a .env file in the working directory are applied to the
// environment first; variables already set take precedence.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	// Load from file if exists
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Override with environment variables
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports settings that would prevent the server from starting
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Security.JWTSecret == "" {
		problems = append(problems, "security.jwt_secret is required")
	}

	switch c.Store.Backend {
	case StoreMemory, StorePostgres:
	case StoreRedis:
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required for the redis store")
		}
	case StoreDynamoDB:
		if c.AWS.DynamoTable == "" {
			problems = append(problems, "aws.dynamo_table is required for the dynamodb store")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q is not one of memory, postgres, redis, dynamodb", c.Store.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NeedsDatabase reports whether Postgres must be reachable at startup.
// Workspace settings live in Postgres for every backend except memory.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend != StoreMemory
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
