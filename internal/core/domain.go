package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Avalanche Strategy = "avalanche" // highest interest rate first
	Snowball  Strategy = "snowball"  // smallest balance first
	NoOrder   Strategy = "none"      // keep entry order
)

const (
	// MaxDebts bounds a single plan; the payoff table gets one column per debt.
	MaxDebts = 50
	// MaxNameLength bounds a debt name, which doubles as a spreadsheet header.
	MaxNameLength = 100

	DefaultSheetName = "Debt Timeline"
	DefaultFileName  = "Debt_Timeline_Plan_Sideways.xlsx"
)

type (
	Strategy string

	// Debt is one account entered by the user. InterestRate is an annual
	// fraction (0.18 for 18%) and may be unset for display purposes.
	Debt struct {
		Name           string              `json:"name"`
		Balance        decimal.Decimal     `json:"balance"`
		MinimumPayment decimal.Decimal     `json:"minimum_payment"`
		InterestRate   decimal.NullDecimal `json:"interest_rate"`
	}

	// Timeline is a rendered payoff table handed to an exporter.
	Timeline struct {
		Title             string
		SheetName         string
		Strategy          Strategy
		Rows              [][]string
		TotalInterestPaid decimal.Decimal
		TotalMonths       int
	}
)

var (
	ErrNoDebts                   = errors.New("no debts provided")
	ErrTooManyDebts              = fmt.Errorf("too many debts (max %d)", MaxDebts)
	ErrEmptyName                 = errors.New("empty debt name")
	ErrNameTooLong               = fmt.Errorf("debt name too long (max %d characters)", MaxNameLength)
	ErrDuplicateName             = errors.New("duplicate debt name")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidBalance            = errors.New("balance must be greater than zero")
	ErrInvalidMinimumPayment     = errors.New("minimum payment must be greater than zero")
	ErrMinimumExceedsBalance     = errors.New("minimum payment cannot exceed debt amount")
	ErrMissingInterestRate       = errors.New("missing interest rate")
	ErrNegativeInterestRate      = errors.New("interest rate cannot be negative")
	ErrNegativeAdditionalPayment = errors.New("additional payment cannot be negative")
	ErrEmptyTimeline             = errors.New("timeline has no rows")
)

// ParseStrategy maps user input to a Strategy. Unknown values fall back to
// NoOrder, matching the simulator's "leave unordered" behaviour.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Avalanche:
		return Avalanche
	case Snowball:
		return Snowball
	default:
		return NoOrder
	}
}

func (s Strategy) String() string {
	return string(s)
}

// Label is the human readable name used by the UI.
func (s Strategy) Label() string {
	switch s {
	case Avalanche:
		return "Avalanche (Highest Interest First)"
	case Snowball:
		return "Snowball (Smallest Balance First)"
	default:
		return "Entry order"
	}
}

// Rate returns the interest rate, or zero when it is unset.
func (d Debt) Rate() decimal.Decimal {
	if !d.InterestRate.Valid {
		return decimal.Zero
	}
	return d.InterestRate.Decimal
}

// RatePercent formats the rate for display, "N/A" when unset.
func (d Debt) RatePercent() string {
	if !d.InterestRate.Valid {
		return "N/A"
	}
	return d.InterestRate.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// Validate checks the per-debt preconditions the simulator relies on.
func (d Debt) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if !d.Balance.IsPositive() {
		return ErrInvalidBalance
	}
	if !d.MinimumPayment.IsPositive() {
		return ErrInvalidMinimumPayment
	}
	if d.MinimumPayment.GreaterThan(d.Balance) {
		return ErrMinimumExceedsBalance
	}
	if !d.InterestRate.Valid {
		return ErrMissingInterestRate
	}
	if d.InterestRate.Decimal.IsNegative() {
		return ErrNegativeInterestRate
	}
	return nil
}

// ValidateDebts validates every debt and enforces unique names, since names
// are used as column headers.
func ValidateDebts(debts []Debt) error {
	if len(debts) == 0 {
		return ErrNoDebts
	}
	if len(debts) > MaxDebts {
		return ErrTooManyDebts
	}
	seen := make(map[string]struct{}, len(debts))
	for i, d := range debts {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("debt %d (%q): %w", i+1, d.Name, err)
		}
		key := strings.ToLower(strings.TrimSpace(d.Name))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("debt %d (%q): %w", i+1, d.Name, ErrDuplicateName)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ValidateAdditionalPayment rejects negative extra payments.
func ValidateAdditionalPayment(p decimal.Decimal) error {
	if p.IsNegative() {
		return ErrNegativeAdditionalPayment
	}
	return nil
}

// Validate checks that a timeline has a header and rectangular rows.
func (t Timeline) Validate() error {
	if len(t.Rows) == 0 {
		return ErrEmptyTimeline
	}
	width := len(t.Rows[0])
	for i, row := range t.Rows {
		if len(row) != width {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), width)
		}
	}
	return nil
}

// Sheet returns the sheet name, defaulting to DefaultSheetName.
func (t Timeline) Sheet() string {
	if s := strings.TrimSpace(t.SheetName); s != "" {
		return s
	}
	return DefaultSheetName
}
