package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	DataDir             string
	AccountsFile        string
	Port                string
	LogLevel            string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("IMAPVAULT_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("IMAPVAULT_ENCRYPTION_KEY_BASE64"),
		DataDir:             getEnvOrDefault("IMAPVAULT_DATA_DIR", "data"),
		AccountsFile:        getEnvOrDefault("IMAPVAULT_ACCOUNTS_FILE", "accounts.json"),
		Port:                getEnvOrDefault("PORT", "3001"),
		LogLevel:            getEnvOrDefault("IMAPVAULT_LOG_LEVEL", "info"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("IMAPVAULT_ENCRYPTION_KEY_BASE64 is required")
	}

	key, err := base64.StdEncoding.DecodeString(c.EncryptionKeyBase64)
	if err != nil {
		return fmt.Errorf("IMAPVAULT_ENCRYPTION_KEY_BASE64 is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("IMAPVAULT_ENCRYPTION_KEY_BASE64 must decode to 32 bytes, got %d", len(key))
	}

	if c.DataDir == "" {
		return fmt.Errorf("IMAPVAULT_DATA_DIR must not be empty")
	}

	if c.AccountsFile == "" {
		return fmt.Errorf("IMAPVAULT_ACCOUNTS_FILE must not be empty")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT is not a valid port number: %s", c.Port)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
