package entity

import (
	"strings"
	"time"
)

// Challenge is the OTP issued to an identity. There is at most one live
// challenge per identity; a new request replaces the previous one.
type Challenge struct {
	ID        string
	Identity  string
	Code      string
	Channel   Channel
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether now is past ExpiresAt. A challenge verified exactly
// at ExpiresAt is still valid.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Channel is how a code reaches its identity.
type Channel int

const (
	ChannelUnknown Channel = iota
	ChannelEmail
	ChannelSMS
)

// ChannelOf derives the channel from the identity shape: phone numbers in
// E.164 form start with "+", everything else is treated as email.
func ChannelOf(identity string) Channel {
	switch {
	case identity == "":
		return ChannelUnknown
	case strings.HasPrefix(identity, "+"):
		return ChannelSMS
	default:
		return ChannelEmail
	}
}

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// ChannelFromString is the inverse of Channel.String.
func ChannelFromString(s string) Channel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return ChannelEmail
	case "sms":
		return ChannelSMS
	default:
		return ChannelUnknown
	}
}
