package event

import "time"

const OTPChallengeVerifiedDestination string = "otp_challenge_verified"

type OTPChallengeVerifiedMessage struct {
	ChallengeID string    `json:"challenge_id"`
	Identity    string    `json:"identity"`
	VerifiedAt  time.Time `json:"verified_at"`
}
