package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the server. Values come from an optional YAML
// file first and are then overridden by environment variables.
type Config struct {
	Port   string `yaml:"port"`
	DBPath string `yaml:"dbPath"`

	JWTSecret        string        `yaml:"jwtSecret"`
	JWTIssuer        string        `yaml:"jwtIssuer"`
	JWTAudience      string        `yaml:"jwtAudience"`
	TokenTTL         time.Duration `yaml:"tokenTTL"`
	IdentityCacheTTL time.Duration `yaml:"identityCacheTTL"`

	HeartbeatTimeout time.Duration `yaml:"heartbeatTimeout"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	SendBuffer       int           `yaml:"sendBuffer"`
	MaxMessageBytes  int64         `yaml:"maxMessageBytes"`

	LogLevel string `yaml:"logLevel"`
	AppEnv   string `yaml:"appEnv"`
	GinMode  string `yaml:"ginMode"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:             "8008",
		DBPath:           "docsync.db",
		JWTSecret:        "development-insecure-secret-change-me",
		JWTIssuer:        "docsync-api",
		JWTAudience:      "docsync-clients",
		TokenTTL:         24 * time.Hour,
		IdentityCacheTTL: 5 * time.Minute,
		HeartbeatTimeout: 60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SendBuffer:       256,
		MaxMessageBytes:  8192,
		LogLevel:         "info",
		AppEnv:           "development",
	}
}

// Load reads .env (if present), the YAML file named by CONFIG_FILE (if set)
// and finally the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnv("JWT_AUDIENCE", c.JWTAudience)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)

	var err error
	if c.TokenTTL, err = getDuration("TOKEN_TTL", c.TokenTTL); err != nil {
		return err
	}
	if c.IdentityCacheTTL, err = getDuration("IDENTITY_CACHE_TTL", c.IdentityCacheTTL); err != nil {
		return err
	}
	if c.HeartbeatTimeout, err = getDuration("HEARTBEAT_TIMEOUT", c.HeartbeatTimeout); err != nil {
		return err
	}
	if c.WriteTimeout, err = getDuration("WRITE_TIMEOUT", c.WriteTimeout); err != nil {
		return err
	}
	if c.SendBuffer, err = getInt("SEND_BUFFER", c.SendBuffer); err != nil {
		return err
	}
	maxBytes, err := getInt("MAX_MESSAGE_BYTES", int(c.MaxMessageBytes))
	if err != nil {
		return err
	}
	c.MaxMessageBytes = int64(maxBytes)
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.TokenTTL <= 0 || c.HeartbeatTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("token ttl, heartbeat timeout and write timeout must be positive")
	}
	if c.IdentityCacheTTL < 0 {
		return errors.New("identity cache ttl must not be negative")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send buffer must be positive, got %d", c.SendBuffer)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
