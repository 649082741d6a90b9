package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig overrides the default rate for one endpoint.
type EndpointConfig struct {
	Path              string  // Endpoint path pattern (a trailing "/" matches by prefix)
	Method            string  // HTTP method
	RequestsPerSecond float64 // Sustained rate; 0 means unlimited
	Burst             int     // Bucket size (defaults to 1)
}

// NewConfig returns an enabled configuration with the given default rate and the
// default endpoint overrides, then applies RATE_LIMIT_* environment variables.
func NewConfig(requestsPerSecond float64, burst int) *Config {
	cfg := &Config{
		Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
		RequestsPerSecond: requestsPerSecond,
		Burst:             burst,
		CleanupInterval:   getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		IdleTTL:           time.Hour,
		Whitelist:         parseIPList(getEnvString("RATE_LIMIT_WHITELIST", "")),
		Blacklist:         parseIPList(getEnvString("RATE_LIMIT_BLACKLIST", "")),
		EndpointConfigs:   DefaultEndpointConfigs(),
	}
	if v := getEnvFloat("RATE_LIMIT_RPS", 0); v > 0 {
		cfg.RequestsPerSecond = v
	}
	if v := getEnvInt("RATE_LIMIT_BURST", 0); v > 0 {
		cfg.Burst = v
	}
	return cfg
}

// DefaultEndpointConfigs returns the stricter limits for expensive endpoints.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Triggering a run crawls every source and calls the classifier.
		{Path: "/runs", Method: "POST", RequestsPerSecond: 1.0 / 60, Burst: 2},
		{Path: "/exemplars", Method: "POST", RequestsPerSecond: 1, Burst: 5},
	}
}

func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of client addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
