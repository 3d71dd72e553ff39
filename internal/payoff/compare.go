package payoff

import (
	"fmt"

	"github.com/shopspring/decimal"

	"winterstorm/internal/core"
)

// Comparison holds the avalanche and snowball schedules for the same debts.
type Comparison struct {
	Avalanche *Result
	Snowball  *Result
	// InterestSaved is how much less interest avalanche pays, floored at 0.
	InterestSaved decimal.Decimal
	// MonthsSaved is snowball months minus avalanche months; may be negative.
	MonthsSaved int
}

// Best returns the schedule with the lower total interest, preferring
// avalanche on ties.
func (c *Comparison) Best() *Result {
	if c.Snowball.TotalInterestPaid.LessThan(c.Avalanche.TotalInterestPaid) {
		return c.Snowball
	}
	return c.Avalanche
}

// Compare simulates both ordering strategies.
func (s *Simulator) Compare(debts []core.Debt, additionalPayment decimal.Decimal) (*Comparison, error) {
	av, err := s.Simulate(debts, core.Avalanche, additionalPayment)
	if err != nil {
		return nil, fmt.Errorf("avalanche: %w", err)
	}
	sb, err := s.Simulate(debts, core.Snowball, additionalPayment)
	if err != nil {
		return nil, fmt.Errorf("snowball: %w", err)
	}
	return NewComparison(av, sb), nil
}

// NewComparison derives the savings figures from two converged results.
func NewComparison(avalanche, snowball *Result) *Comparison {
	saved := snowball.TotalInterestPaid.Sub(avalanche.TotalInterestPaid)
	if saved.IsNegative() {
		saved = decimal.Zero
	}
	return &Comparison{
		Avalanche:     avalanche,
		Snowball:      snowball,
		InterestSaved: saved,
		MonthsSaved:   snowball.TotalMonths - avalanche.TotalMonths,
	}
}
