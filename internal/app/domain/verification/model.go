package verification

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAlreadyVerified rejects a second verify call on the same event.
var ErrAlreadyVerified = errors.New("verification event already verified")

// EventType distinguishes pickup from delivery confirmations.
type EventType string

const (
	EventPickup   EventType = "pickup"
	EventDelivery EventType = "delivery"
)

// Event records a pickup or delivery confirmation for a donation. Code is
// the human-shareable identifier, distinct from the row id. VerifiedAt moves
// once from unset to set and is never cleared.
type Event struct {
	ID           string     `json:"id"`
	DonationID   string     `json:"donationId"`
	Code         string     `json:"verificationCode"`
	Type         EventType  `json:"eventType"`
	ScheduledFor time.Time  `json:"scheduledFor"`
	VerifiedAt   *time.Time `json:"verifiedAt,omitempty"`
	DataHash     string     `json:"dataHash,omitempty"`
	TxRef        string     `json:"txHash,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Verified reports whether the event has been confirmed.
func (e Event) Verified() bool {
	return e.VerifiedAt != nil
}

// NewCode generates a shareable verification code of the form VC-XXXXXX.
func NewCode() string {
	return "VC-" + strings.ToUpper(randomHex(3))
}

// NewTxRef generates the opaque reference token returned on verification.
// This is a mock placeholder with no cryptographic meaning.
func NewTxRef() string {
	return "0x" + randomHex(16)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable for code generation
		panic(fmt.Sprintf("verification: read random: %v", err))
	}
	return hex.EncodeToString(buf)
}
