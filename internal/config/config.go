package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	AppMode   string
	Port      string
	Database  DatabaseConfig
	JWT       JWTConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver     string // mysql | sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret          string
	AccessTokenMins int
}

// ReconcileConfig holds the book status repair job configuration
type ReconcileConfig struct {
	Schedule string
}

// RateLimitConfig holds per-user mutation limits
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// trim spaces for Windows compatibility
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	config := &Config{
		AppMode:   appMode,
		Port:      getEnv("PORT", "3000"),
		Database:  loadDatabaseConfig(appMode),
		JWT:       loadJWTConfig(appMode),
		Reconcile: ReconcileConfig{Schedule: getEnv("RECONCILE_SCHEDULE", "@every 10m")},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("MUTATION_RATE_PER_MIN", 30),
			Burst:     getEnvInt("MUTATION_BURST", 10),
		},
	}

	if config.Database.Driver != "mysql" && config.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("invalid DB_DRIVER: '%s' (must be 'mysql' or 'sqlite')", config.Database.Driver)
	}
	if config.IsProd() && config.JWT.Secret == defaultJWTSecret {
		return nil, fmt.Errorf("PROD_JWT_SECRET must be set in prod mode")
	}

	// Set global config
	AppConfig = config

	log.Printf("✅ Configuration loaded successfully [MODE: %s, DB: %s]", appMode, config.Database.Driver)
	return config, nil
}

const defaultJWTSecret = "default_secret"

func modePrefix(mode string) string {
	if mode == "prod" {
		return "PROD_"
	}
	return "DEV_"
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) DatabaseConfig {
	prefix := modePrefix(mode)

	driver := "mysql"
	if mode == "dev" {
		driver = "sqlite"
	}

	return DatabaseConfig{
		Driver:     strings.ToLower(strings.TrimSpace(getEnv("DB_DRIVER", driver))),
		Host:       getEnv(prefix+"DB_HOST", "localhost"),
		Port:       getEnv(prefix+"DB_PORT", "3306"),
		User:       getEnv(prefix+"DB_USER", "root"),
		Password:   getEnv(prefix+"DB_PASS", ""),
		DBName:     getEnv(prefix+"DB_NAME", "bookshare"),
		SQLitePath: getEnv("SQLITE_PATH", "bookshare.db"),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	return JWTConfig{
		Secret:          getEnv(modePrefix(mode)+"JWT_SECRET", defaultJWTSecret),
		AccessTokenMins: getEnvInt("ACCESS_TOKEN_MINUTES", 60),
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(getEnv(key, "")))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return "http://localhost:5173"
	}
	return origins
}
