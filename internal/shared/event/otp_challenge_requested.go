package event

import "time"

const OTPChallengeRequestedDestination string = "otp_challenge_requested"
const OTPChallengeRequestedConsumerDelivery string = "otp_challenge_requested_delivery"

type OTPChallengeRequestedMessage struct {
	ChallengeID string    `json:"challenge_id"`
	Identity    string    `json:"identity"`
	Channel     string    `json:"channel"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}
