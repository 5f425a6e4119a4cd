// Package uid generates identifiers for challenges, events and requests.
package uid

// StringID generates string identifiers (UUIDv7 by default).
type StringID interface {
	Generate() string
}

// NumberID generates time-ordered numeric identifiers.
type NumberID interface {
	Generate() int64
}
