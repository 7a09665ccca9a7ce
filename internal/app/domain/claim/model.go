package claim

import "time"

// Status is the claim lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known claim status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Claim is a receiver's reservation of a specific donation. At most one
// non-cancelled claim exists per (donation, receiver) pair.
type Claim struct {
	ID         string    `json:"id"`
	DonationID string    `json:"donationId"`
	ReceiverID string    `json:"receiverId"`
	Status     Status    `json:"status"`
	ClaimedAt  time.Time `json:"claimedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}
