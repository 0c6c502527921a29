package appointment

import "errors"

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrBalanceNotSettled  = errors.New("remaining balance not settled")
	ErrDepositNotRecorded = errors.New("deposit not recorded")
)

// transitions is the full lifecycle graph. Terminal statuses have no
// entry: nothing leaves completed, cancelled or no_show.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusNoShow, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the (from, to) pair is in the lifecycle
// graph. Guards (deposit, same-day, settled balance) are checked by the
// service on top of this.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
