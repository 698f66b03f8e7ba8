package contracts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/animus-contracts/internal/platform/env"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Store          string
	LockTimeout    time.Duration
	ExpiryInterval time.Duration
	IdentityTTL    time.Duration
	KeyringFile    string
	PolicyFile     string
}

func ConfigFromEnv() (Config, error) {
	lockTimeout, err := env.Duration("CONTRACTS_LOCK_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	expiryInterval, err := env.Duration("CONTRACTS_EXPIRY_INTERVAL", time.Minute)
	if err != nil {
		return Config{}, err
	}
	identityTTL, err := env.Duration("IDENTITY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Store:          strings.ToLower(env.String("CONTRACTS_STORE", StorePostgres)),
		LockTimeout:    lockTimeout,
		ExpiryInterval: expiryInterval,
		IdentityTTL:    identityTTL,
		KeyringFile:    env.String("IDENTITY_KEYRING_FILE", ""),
		PolicyFile:     env.String("AUTHZ_POLICY_FILE", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("CONTRACTS_STORE must be %q or %q", StoreMemory, StorePostgres)
	}
	if c.LockTimeout <= 0 {
		return errors.New("CONTRACTS_LOCK_TIMEOUT must be positive")
	}
	if c.ExpiryInterval < 0 {
		return errors.New("CONTRACTS_EXPIRY_INTERVAL must be >= 0")
	}
	if c.IdentityTTL < 0 {
		return errors.New("IDENTITY_CACHE_TTL must be >= 0")
	}
	if strings.TrimSpace(c.KeyringFile) == "" {
		return errors.New("IDENTITY_KEYRING_FILE is required")
	}
	return nil
}
