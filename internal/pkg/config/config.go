package config

import (
	"io"
	"time"
)

// TimeConfig reads integer values and scales them into durations.
type TimeConfig interface {
	// GetSecond reads key as a number of seconds.
	GetSecond(key string) time.Duration
	// GetMinute reads key as a number of minutes.
	GetMinute(key string) time.Duration
	// GetHour reads key as a number of hours.
	GetHour(key string) time.Duration
}

// NumberConfig reads numeric values. Missing or unparsable keys yield zero.
type NumberConfig interface {
	GetInt(key string) int
	GetInt32(key string) int32
	GetInt64(key string) int64
	GetUint(key string) uint
	GetUint16(key string) uint16
	GetFloat64(key string) float64
}

// Config is the read-only view over runtime configuration used by every module.
//
// Implementations return zero values for missing keys; callers that need a
// value to be present validate it themselves at wiring time.
type Config interface {
	io.Closer
	TimeConfig
	NumberConfig

	GetBool(key string) bool
	GetString(key string) string

	// GetBinary reads a base64 encoded value.
	GetBinary(key string) []byte

	// GetArray reads a list. Both YAML sequences and "a,b,c" strings are accepted;
	// elements are trimmed and empty ones dropped.
	GetArray(key string) []string

	// GetMap reads "k1:v1,k2:v2" pairs.
	GetMap(key string) map[string]string
}
