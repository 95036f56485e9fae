package utils

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetEnv returns the value of key, or fallback when it is unset or empty.
func GetEnv(key string, fallback ...string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}

func GetEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(GetEnv(key))
	if err != nil {
		return fallback
	}
	return value
}

func GetEnvFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(GetEnv(key), 64)
	if err != nil {
		return fallback
	}
	return value
}

func GetEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(GetEnv(key))
	if err != nil {
		return fallback
	}
	return value
}

// GetEnvSeconds reads a duration expressed in (possibly fractional) seconds.
func GetEnvSeconds(key string, fallback time.Duration) time.Duration {
	value, err := strconv.ParseFloat(GetEnv(key), 64)
	if err != nil {
		return fallback
	}
	return time.Duration(value * float64(time.Second))
}

func CreateFolder(folderPath string) error {
	return os.MkdirAll(folderPath, 0o755)
}

// NewShortID returns an opaque 8 character identifier.
func NewShortID() string {
	return uuid.NewString()[:8]
}
