package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port        string
	Production  bool
	Stage       string
	StoreDriver string
	CORSOrigins []string
	JWTSecret   string

	DynamoDB DynamoDBConfig
	Postgres PostgresConfig

	RedisAddr string
	RedisTTL  time.Duration

	AMQPURL      string
	AMQPExchange string

	PropagationWorkers int
	ReactionRetries    int
	PageSize           int32
}

type DynamoDBConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	CreateTables    bool
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the connection string in the form gorm's postgres driver expects.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		p.Host, p.User, p.Password, p.Name, p.Port, p.SSLMode,
	)
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Production:  getEnv("GIN_MODE", "debug") == "release",
		Stage:       getEnv("STAGE", "dev"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverDynamoDB)),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		DynamoDB: DynamoDBConfig{
			Region:          getEnv("AWS_REGION", "ap-northeast-1"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Endpoint:        os.Getenv("DYNAMODB_ENDPOINT"),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "terakoya"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "timeline_events"),
	}

	var err error
	if cfg.DynamoDB.CreateTables, err = getBool("DYNAMODB_CREATE_TABLES", false); err != nil {
		return nil, err
	}
	if cfg.RedisTTL, err = getDuration("REDIS_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.PropagationWorkers, err = getInt("PROPAGATION_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.ReactionRetries, err = getInt("REACTION_RETRIES", 5); err != nil {
		return nil, err
	}
	pageSize, err := getInt("PAGE_SIZE", 20)
	if err != nil {
		return nil, err
	}
	cfg.PageSize = int32(pageSize)

	switch cfg.StoreDriver {
	case DriverDynamoDB, DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// getEnv returns the variable or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
