package utils

import (
	"os"
	"strconv"
	"time"
)

func GetEnvDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration returns the duration stored in key, or defaultValue when the
// variable is unset or unparsable.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(GetEnvDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func GetEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(GetEnvDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}
