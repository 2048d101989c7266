package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// GetString looks up key in the environment, falling back when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt looks up key as an integer. Unset or unparsable values yield the
// fallback; a parse failure is logged so a typo does not pass silently.
func GetInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: invalid %s=%q: %v", key, value, err)
		return fallback
	}
	return parsed
}

// GetBool looks up key as a boolean ("1", "t", "true", ...).
func GetBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("config: invalid %s=%q: %v", key, value, err)
		return fallback
	}
	return parsed
}

// GetDuration looks up key as a Go duration string ("30s", "1m").
func GetDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("config: invalid %s=%q: %v", key, value, err)
		return fallback
	}
	return parsed
}
