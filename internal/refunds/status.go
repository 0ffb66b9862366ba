package refunds

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// IsValid checks if the refund status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal checks if the refund has a final outcome
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}
