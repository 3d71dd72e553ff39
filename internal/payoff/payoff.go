// Package payoff simulates paying down a set of debts month by month.
//
// Each month every unpaid debt accrues balance*rate/12 interest and then
// receives its minimum payment, the optional additional payment, and the
// rollover: the sum of minimum payments of debts already paid off. Rollover
// is global, so every remaining debt receives the same bonus in the same
// pass, including debts later in the pass of the month a debt is cleared.
package payoff

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"winterstorm/internal/core"
)

// DefaultMaxMonths caps a simulation at 100 years.
const DefaultMaxMonths = 1200

// interestScale is the number of decimal places monthly interest is kept at.
// Mul is exact, so unrounded balances would gain digits every month.
const interestScale = 10

var (
	twelve = decimal.NewFromInt(12)

	// ErrDidNotConverge is returned when balances remain after MaxMonths.
	ErrDidNotConverge = errors.New("debts did not converge to zero")
)

// NotConvergedError reports which debts were still unpaid at the cap.
type NotConvergedError struct {
	MaxMonths int
	Unpaid    []string
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("debts did not converge to zero within %d months (unpaid: %s)",
		e.MaxMonths, strings.Join(e.Unpaid, ", "))
}

func (e *NotConvergedError) Unwrap() error { return ErrDidNotConverge }

// Result is a converged payoff schedule.
type Result struct {
	Strategy          core.Strategy
	AdditionalPayment decimal.Decimal
	// Order holds debt names in column order.
	Order []string
	// Table is the header row followed by one row per month.
	Table             [][]string
	TotalInterestPaid decimal.Decimal
	TotalMonths       int
}

// Header returns the header row.
func (r *Result) Header() []string {
	if len(r.Table) == 0 {
		return nil
	}
	return r.Table[0]
}

// Rows returns the month rows without the header.
func (r *Result) Rows() [][]string {
	if len(r.Table) < 2 {
		return nil
	}
	return r.Table[1:]
}

// Timeline converts the result into an exportable timeline.
func (r *Result) Timeline(title, sheet string) core.Timeline {
	return core.Timeline{
		Title:             title,
		SheetName:         sheet,
		Strategy:          r.Strategy,
		Rows:              r.Table,
		TotalInterestPaid: r.TotalInterestPaid,
		TotalMonths:       r.TotalMonths,
	}
}

// Simulator runs payoff simulations. The zero value is ready to use.
type Simulator struct {
	// MaxMonths bounds the simulation; <= 0 means DefaultMaxMonths.
	MaxMonths int
}

// New returns a Simulator capped at maxMonths.
func New(maxMonths int) *Simulator {
	return &Simulator{MaxMonths: maxMonths}
}

func (s *Simulator) maxMonths() int {
	if s == nil || s.MaxMonths <= 0 {
		return DefaultMaxMonths
	}
	return s.MaxMonths
}

// SortDebts returns a copy of debts ordered for the strategy. The sort is
// stable: avalanche orders by descending interest rate, snowball by ascending
// balance, and anything else keeps the input order.
func SortDebts(debts []core.Debt, strategy core.Strategy) []core.Debt {
	out := make([]core.Debt, len(debts))
	copy(out, debts)
	switch strategy {
	case core.Avalanche:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Rate().GreaterThan(out[j].Rate())
		})
	case core.Snowball:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Balance.LessThan(out[j].Balance)
		})
	}
	return out
}

type account struct {
	name    string
	balance decimal.Decimal
	minimum decimal.Decimal
	monthly decimal.Decimal
}

// Simulate pays the debts down until every balance is zero. Input debts are
// not modified. Debts must carry an interest rate; other preconditions
// (positive minimums, minimum <= balance) are the caller's to check.
func (s *Simulator) Simulate(debts []core.Debt, strategy core.Strategy, additionalPayment decimal.Decimal) (*Result, error) {
	sorted := SortDebts(debts, strategy)
	accounts := make([]account, len(sorted))
	header := make([]string, 0, len(sorted)+1)
	header = append(header, "Month")
	for i, d := range sorted {
		if !d.InterestRate.Valid {
			return nil, fmt.Errorf("debt %q: %w", d.Name, core.ErrMissingInterestRate)
		}
		accounts[i] = account{
			name:    d.Name,
			balance: d.Balance,
			minimum: d.MinimumPayment,
			monthly: d.InterestRate.Decimal.Div(twelve),
		}
		header = append(header, d.Name)
	}

	res := &Result{
		Strategy:          strategy,
		AdditionalPayment: additionalPayment,
		Order:             header[1:],
		Table:             [][]string{header},
		TotalInterestPaid: decimal.Zero,
	}

	limit := s.maxMonths()
	rolling := decimal.Zero
	for month := 1; anyOwed(accounts); month++ {
		if month > limit {
			return nil, &NotConvergedError{MaxMonths: limit, Unpaid: unpaid(accounts)}
		}
		row := make([]string, 0, len(accounts)+1)
		row = append(row, "Month "+strconv.Itoa(month))
		for i := range accounts {
			a := &accounts[i]
			if !a.balance.IsPositive() {
				row = append(row, "0.00")
				continue
			}
			interest := a.balance.Mul(a.monthly).Round(interestScale)
			res.TotalInterestPaid = res.TotalInterestPaid.Add(interest)
			a.balance = a.balance.Add(interest)

			payment := decimal.Min(a.balance, a.minimum.Add(additionalPayment).Add(rolling))
			a.balance = a.balance.Sub(payment)
			row = append(row, core.FormatAmount(a.balance))

			if !a.balance.IsPositive() {
				rolling = rolling.Add(a.minimum)
				a.balance = decimal.Zero
			}
		}
		res.Table = append(res.Table, row)
	}
	res.TotalMonths = len(res.Table) - 1
	return res, nil
}

func anyOwed(accounts []account) bool {
	for _, a := range accounts {
		if a.balance.IsPositive() {
			return true
		}
	}
	return false
}

func unpaid(accounts []account) []string {
	var names []string
	for _, a := range accounts {
		if a.balance.IsPositive() {
			names = append(names, a.name)
		}
	}
	return names
}
