// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr          string
	JWTSigningKey string

	// AdminSecretHash is the bcrypt hash of the operator secret accepted by
	// the admin token exchange. Empty disables the exchange.
	AdminSecretHash string

	// PIIRootKey is the process-wide root secret the crypto service splits
	// into cipher key and ID salt. Missing or malformed is a startup failure:
	// running without it would silently derive different contact IDs.
	PIIRootKey []byte

	DatabaseURL string

	RedisURL string

	KafkaBrokers []string
	AuditTopic   string

	VaultPath       string
	VaultKeyEnvVar  string
	VaultMountedKey string
	VaultSystemKey  string
	VaultDevKey     string

	ShutdownTimeout time.Duration
}

// FromEnv builds a Config from environment variables. The PII root key is
// required; everything else has a development default or is optional.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:            envOr("CONSENTRY_ADDR", ":8080"),
		JWTSigningKey:   envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AdminSecretHash: os.Getenv("ADMIN_SECRET_HASH"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		AuditTopic:      os.Getenv("AUDIT_TOPIC"),
		VaultPath:       envOr("VAULT_PATH", "data/vault.enc"),
		VaultKeyEnvVar:  "VAULT_KEY",
		VaultMountedKey: os.Getenv("VAULT_KEY_MOUNTED_PATH"),
		VaultSystemKey:  os.Getenv("VAULT_KEY_SYSTEM_PATH"),
		VaultDevKey:     envOr("VAULT_KEY_DEV_PATH", "data/vault.key"),
		ShutdownTimeout: 10 * time.Second,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	raw := strings.TrimSpace(os.Getenv("PII_ROOT_KEY"))
	if raw == "" {
		return Config{}, fmt.Errorf("PII_ROOT_KEY is required: contact IDs and ciphertexts are bound to it")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Config{}, fmt.Errorf("PII_ROOT_KEY must be base64: %w", err)
	}
	cfg.PIIRootKey = key

	return cfg, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
