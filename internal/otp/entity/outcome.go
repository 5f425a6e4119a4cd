package entity

// Outcome is the result of verifying a code. Every outcome is a normal
// result, not an error.
type Outcome int

const (
	OutcomeNoChallenge Outcome = iota
	OutcomeExpired
	OutcomeMismatch
	OutcomeVerified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExpired:
		return "expired"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeVerified:
		return "verified"
	default:
		return "no_challenge"
	}
}

// Message is the user-facing text for the outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeExpired:
		return "OTP expired"
	case OutcomeMismatch:
		return "Invalid OTP"
	case OutcomeVerified:
		return "OTP Verified"
	default:
		return "No OTP requested"
	}
}

// Verified is shorthand for o == OutcomeVerified.
func (o Outcome) Verified() bool {
	return o == OutcomeVerified
}
