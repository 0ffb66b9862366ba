package cancellation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy is the time-based cancellation policy attached to a booking. It is
// stored inline on the booking row.
type Policy struct {
	FreeWindowHours      int             `gorm:"not null;default:48" json:"free_window_hours"`
	PartialRefundPercent decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"partial_refund_percent"`
	CutoffHours          int             `gorm:"not null;default:24" json:"cutoff_hours"`
}

// Tier is the refund band a cancellation falls into
type Tier string

const (
	TierFull    Tier = "FULL"
	TierPartial Tier = "PARTIAL"
	TierNone    Tier = "NONE"
)

// Input is the booking snapshot the policy engine evaluates
type Input struct {
	Total    decimal.Decimal
	Currency string
	CheckIn  time.Time
	Now      time.Time
	Policy   Policy
}

// Decision is the outcome of evaluating a policy
type Decision struct {
	Tier         Tier            `json:"tier"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	UntilCheckIn time.Duration   `json:"-"`
	HoursLeft    float64         `json:"hours_until_check_in"`
}

// RequiresRefund reports whether money has to be returned to the customer
func (d Decision) RequiresRefund() bool {
	return d.Amount.IsPositive()
}
