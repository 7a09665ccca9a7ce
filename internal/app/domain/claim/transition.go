package claim

import (
	"errors"

	"github.com/greenchain/greenchain/internal/app/domain/donation"
)

// Transition rejections.
var (
	// ErrInvalidTransition rejects a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid claim status transition")

	// ErrAlreadyClaimed rejects a second claim by the same receiver on the
	// same donation.
	ErrAlreadyClaimed = errors.New("donation already claimed by receiver")
)

// ApplyStatusChange is the single authoritative transition function for the
// claim state machine. Given the claim's current status and the requested
// target, it returns the donation status that must be persisted alongside
// the claim, or ErrInvalidTransition. It is pure: no I/O, no clock.
//
// Allowed transitions and their donation side effects:
//
//	pending  -> accepted   donation becomes in_transit
//	pending  -> completed  donation becomes completed
//	accepted -> completed  donation becomes completed
//	pending  -> cancelled  donation returns to available
//	accepted -> cancelled  donation returns to available
//
// completed and cancelled are terminal.
func ApplyStatusChange(current, target Status) (donation.Status, error) {
	if !target.Valid() {
		return "", ErrInvalidTransition
	}
	if current.Terminal() {
		return "", ErrInvalidTransition
	}

	switch {
	case current == StatusPending && target == StatusAccepted:
		return donation.StatusInTransit, nil
	case (current == StatusPending || current == StatusAccepted) && target == StatusCompleted:
		return donation.StatusCompleted, nil
	case (current == StatusPending || current == StatusAccepted) && target == StatusCancelled:
		return donation.StatusAvailable, nil
	}
	return "", ErrInvalidTransition
}
