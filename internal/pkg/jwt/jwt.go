package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSigningMethod is returned when the token is not HS512.
	ErrInvalidSigningMethod = errors.New("invalid JWT signing method")
	// ErrSigningKeyTooShort is returned when the HS512 key is shorter than 64 bytes.
	ErrSigningKeyTooShort = errors.New("HS512 signing key must be at least 64 bytes (512 bits)")
	// ErrTTLRequired is returned when the token lifetime is not positive.
	ErrTTLRequired = errors.New("JWT ttl must be positive")
	// ErrTokenExpired is returned when the token has expired.
	ErrTokenExpired = errors.New("JWT token has expired")
	// ErrInvalidToken is returned when the token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// JWT issues verification tokens.
type JWT interface {
	Generate(subject Subject) (string, error)
	Verify(token string) (Claims, error)
}

// Subject is what a verification token vouches for.
type Subject struct {
	Identity    string
	Channel     string
	ChallengeID string
}

type clocker interface {
	Now() time.Time
}

type generator interface {
	Generate() string
}

// Config defines the inputs for building a JWT implementation.
type Config struct {
	Secret    []byte
	Issuer    string
	Audiences []string
	TTL       time.Duration
	Clock     clocker
	UUID      generator
}

// Claims are the registered claims plus the verified identity.
type Claims struct {
	jwt.RegisteredClaims
	Channel     string `json:"channel"`
	ChallengeID string `json:"challenge_id"`
}
