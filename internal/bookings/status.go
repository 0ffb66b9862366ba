package bookings

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusConfirmed     Status = "CONFIRMED"
	StatusCancelled     Status = "CANCELLED"
	StatusRefundPending Status = "REFUND_PENDING"
	StatusRefunded      Status = "REFUNDED"
	StatusRefundFailed  Status = "REFUND_FAILED"
	StatusCompleted     Status = "COMPLETED"
)

// transitions is the booking lifecycle graph. REFUND_FAILED → REFUND_PENDING
// is only taken by an operator retry.
var transitions = map[Status][]Status{
	StatusPending:       {StatusConfirmed},
	StatusConfirmed:     {StatusCancelled, StatusCompleted},
	StatusCancelled:     {StatusRefundPending},
	StatusRefundPending: {StatusRefunded, StatusRefundFailed},
	StatusRefundFailed:  {StatusRefundPending},
}

// IsValid checks if the booking status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusRefundPending,
		StatusRefunded, StatusRefundFailed, StatusCompleted:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// CanBeCancelled checks if a booking with this status can be cancelled
func (s Status) CanBeCancelled() bool {
	return s == StatusConfirmed
}

// IsActive checks if the booking still holds a reservation
func (s Status) IsActive() bool {
	return s == StatusConfirmed
}

// IsCancelled checks if the booking has left the active lifecycle through cancellation
func (s Status) IsCancelled() bool {
	switch s {
	case StatusCancelled, StatusRefundPending, StatusRefunded, StatusRefundFailed:
		return true
	}
	return false
}

// IsTerminal checks if no event can move the booking any further
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo checks the lifecycle graph
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
