package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultJWTExpirationHours is the lifetime of API tokens when none is configured.
const DefaultJWTExpirationHours = 24

// JWTConfig holds configuration for API token signing and validation.
// The secret only comes from JWT_SECRET.
type JWTConfig struct {
	Secret          string `yaml:"-"`
	ExpirationHours int    `yaml:"expiration_hours"`
	Issuer          string `yaml:"issuer"`
}

// NewJWTConfig creates a JWT configuration from environment variables.
// It reads JWT_SECRET (required) and JWT_EXPIRATION_HOURS (default: 24).
func NewJWTConfig() (*JWTConfig, error) {
	c := &JWTConfig{ExpirationHours: DefaultJWTExpirationHours}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Require(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *JWTConfig) applyEnv() error {
	c.Secret = os.Getenv("JWT_SECRET")
	if v := os.Getenv("JWT_EXPIRATION_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %v", err)
		}
		c.ExpirationHours = hours
	}
	if c.ExpirationHours == 0 {
		c.ExpirationHours = DefaultJWTExpirationHours
	}
	if c.Issuer == "" {
		c.Issuer = "tender-radar"
	}
	return nil
}

// Require checks that tokens can be issued and verified.
func (c *JWTConfig) Require() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}

// Expiration returns the token lifetime.
func (c *JWTConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}
