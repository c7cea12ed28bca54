package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers for the persisted cart and wishlist
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	Environment string
	LogLevel    string
	API         APIConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	DevAPI      DevAPIConfig
	Stripe      StripeConfig
}

type APIConfig struct {
	BaseURL  string
	Timeout  time.Duration
	LoginURL string
}

type StorageConfig struct {
	Driver string
	Dir    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DevAPIConfig struct {
	Port      string
	JWTSecret string
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("API_BASE_URL", "http://localhost:8080/api")
	viper.SetDefault("API_TIMEOUT_SECONDS", "30")
	viper.SetDefault("STORAGE_DRIVER", StorageFile)
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	timeoutSeconds, err := strconv.Atoi(getEnvOrViper("API_TIMEOUT_SECONDS", "30"))
	if err != nil || timeoutSeconds <= 0 {
		return nil, fmt.Errorf("API_TIMEOUT_SECONDS must be a positive integer")
	}

	redisDB, err := strconv.Atoi(getEnvOrViper("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB must be an integer: %w", err)
	}

	cfg := &Config{
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrViper("LOG_LEVEL", "info"),
		API: APIConfig{
			BaseURL:  getEnvOrViper("API_BASE_URL", "http://localhost:8080/api"),
			Timeout:  time.Duration(timeoutSeconds) * time.Second,
			LoginURL: getEnvOrViper("LOGIN_URL", "/login"),
		},
		Storage: StorageConfig{
			Driver: getEnvOrViper("STORAGE_DRIVER", StorageFile),
			Dir:    getEnvOrViper("STORAGE_DIR", defaultStorageDir()),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "storefront"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrViper("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrViper("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		DevAPI: DevAPIConfig{
			Port:      getEnvOrViper("PORT", "8080"),
			JWTSecret: getEnvOrViper("JWT_SECRET", "dev-secret-change-in-production"),
		},
		Stripe: StripeConfig{
			SecretKey:      getEnvOrViper("STRIPE_SECRET_KEY", ""),
			PublishableKey: getEnvOrViper("STRIPE_PUBLISHABLE_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.API.BaseURL)
	}

	switch c.Storage.Driver {
	case StorageMemory, StorageFile, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("STORAGE_DRIVER %q is not supported", c.Storage.Driver)
	}

	if c.Storage.Driver == StorageFile && c.Storage.Dir == "" {
		return fmt.Errorf("STORAGE_DIR is required for the file driver")
	}

	return nil
}

// DSN builds a lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func defaultStorageDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".storefront"
	}
	return dir + string(os.PathSeparator) + "storefront"
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}
