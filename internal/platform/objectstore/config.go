package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-contracts/internal/platform/env"
)

// Config describes the bucket terminal audit trails are archived to.
type Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func ConfigFromEnv() (Config, error) {
	enabled, err := env.Bool("AUDIT_ARCHIVE_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	useSSL, err := env.Bool("AUDIT_ARCHIVE_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Enabled:   enabled,
		Endpoint:  env.String("AUDIT_ARCHIVE_ENDPOINT", "localhost:9000"),
		AccessKey: env.String("AUDIT_ARCHIVE_ACCESS_KEY", ""),
		SecretKey: env.String("AUDIT_ARCHIVE_SECRET_KEY", ""),
		Region:    env.String("AUDIT_ARCHIVE_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("AUDIT_ARCHIVE_BUCKET", "contract-audit"),
		Prefix:    strings.Trim(env.String("AUDIT_ARCHIVE_PREFIX", "trails"), "/"),
	}
	if !cfg.Enabled {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("AUDIT_ARCHIVE_ENDPOINT is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("AUDIT_ARCHIVE_ACCESS_KEY is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("AUDIT_ARCHIVE_SECRET_KEY is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("AUDIT_ARCHIVE_REGION is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("AUDIT_ARCHIVE_BUCKET is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
