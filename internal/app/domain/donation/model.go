package donation

import "time"

// Status is the donation lifecycle state. Exactly one status holds at a time.
type Status string

const (
	StatusAvailable Status = "available"
	StatusClaimed   Status = "claimed"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is a known donation status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusClaimed, StatusInTransit, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Donation is a listing of surplus food offered by a donor. DonorID is
// immutable after creation.
type Donation struct {
	ID        string    `json:"id"`
	DonorID   string    `json:"donorId"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit"`
	Location  string    `json:"location"`
	Expiry    time.Time `json:"expiryDate"`
	Notes     string    `json:"notes,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
