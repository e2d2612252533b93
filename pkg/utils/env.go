package utils

import (
	"os"
	"strconv"
	"time"
)

// EnvOrDefault returns the environment variable value for key, or fallback
// if it is unset or empty.
func EnvOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// EnvOrDefaultInt parses key as an int, falling back on absence or a parse
// error.
func EnvOrDefaultInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// EnvOrDefaultFloat parses key as a float64, falling back on absence or a
// parse error. Used for physics tunables (gravity, friction coefficients).
func EnvOrDefaultFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// EnvOrDefaultBool parses key as a bool, falling back on absence or a parse
// error.
func EnvOrDefaultBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// EnvOrDefaultDuration parses key as a millisecond count, falling back on
// absence or a parse error. Most of the options in the configuration
// surface are expressed in milliseconds on the wire.
func EnvOrDefaultDuration(key string, fallbackMS int) time.Duration {
	return time.Duration(EnvOrDefaultInt(key, fallbackMS)) * time.Millisecond
}
