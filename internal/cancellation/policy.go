package cancellation

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"refundsaga/internal/shared/apperror"
	"refundsaga/pkg/money"
)

var (
	ErrInvalidPolicy = apperror.New(apperror.KindValidation, http.StatusBadRequest, "invalid cancellation policy")
	ErrInvalidAmount = apperror.New(apperror.KindValidation, http.StatusBadRequest, "invalid booking amount")
)

var maxPercent = decimal.NewFromInt(100)

// DefaultPolicy is applied to bookings created without an explicit policy
func DefaultPolicy() Policy {
	return Policy{
		FreeWindowHours:      48,
		PartialRefundPercent: decimal.NewFromInt(50),
		CutoffHours:          24,
	}
}

// Validate checks the policy parameters. An inverted window (cutoff later than
// the free-cancellation deadline) is rejected here rather than producing
// surprising tiers at evaluation time.
func (p Policy) Validate() error {
	if p.FreeWindowHours < 0 {
		return fmt.Errorf("%w: free window hours must not be negative", ErrInvalidPolicy)
	}
	if p.CutoffHours < 0 {
		return fmt.Errorf("%w: cutoff hours must not be negative", ErrInvalidPolicy)
	}
	if p.PartialRefundPercent.IsNegative() || p.PartialRefundPercent.GreaterThan(maxPercent) {
		return fmt.Errorf("%w: partial refund percent must be between 0 and 100", ErrInvalidPolicy)
	}
	if p.CutoffHours > p.FreeWindowHours {
		return fmt.Errorf("%w: cutoff (%dh) is later than the free window (%dh)", ErrInvalidPolicy, p.CutoffHours, p.FreeWindowHours)
	}
	return nil
}

// FreeWindow returns the free-cancellation window as a duration
func (p Policy) FreeWindow() time.Duration {
	return time.Duration(p.FreeWindowHours) * time.Hour
}

// Cutoff returns the no-refund cutoff as a duration
func (p Policy) Cutoff() time.Duration {
	return time.Duration(p.CutoffHours) * time.Hour
}

// ComputeRefund evaluates the policy for a booking snapshot. It has no side
// effects and depends only on its input.
func ComputeRefund(in Input) (Decision, error) {
	if err := in.Policy.Validate(); err != nil {
		return Decision{}, err
	}
	if in.Total.IsNegative() {
		return Decision{}, fmt.Errorf("%w: total %s is negative", ErrInvalidAmount, in.Total)
	}
	if !money.ValidCurrency(in.Currency) {
		return Decision{}, fmt.Errorf("%w: currency %q", ErrInvalidAmount, in.Currency)
	}

	until := in.CheckIn.Sub(in.Now)
	decision := Decision{
		Currency:     in.Currency,
		UntilCheckIn: until,
		HoursLeft:    until.Hours(),
	}

	switch {
	case until >= in.Policy.FreeWindow():
		decision.Tier = TierFull
		decision.Amount = in.Total
	case until >= in.Policy.Cutoff():
		decision.Tier = TierPartial
		decision.Amount = money.Percent(in.Total, in.Policy.PartialRefundPercent, in.Currency)
	default:
		decision.Tier = TierNone
		decision.Amount = decimal.Zero
	}

	return decision, nil
}
