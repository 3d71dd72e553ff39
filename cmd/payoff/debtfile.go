package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"winterstorm/internal/core"
)

// debtFile is the TOML input:
//
//	strategy = "snowball"
//	additional_payment = 50
//
//	[[debt]]
//	name = "Visa"
//	balance = 3000
//	minimum_payment = 90
//	interest_rate = 22.99 # percent
type debtFile struct {
	Strategy          string      `toml:"strategy"`
	AdditionalPayment amount      `toml:"additional_payment"`
	Debts             []debtEntry `toml:"debt"`
}

type debtEntry struct {
	Name           string `toml:"name"`
	Balance        amount `toml:"balance"`
	MinimumPayment amount `toml:"minimum_payment"`
	InterestRate   amount `toml:"interest_rate"`
}

// amount accepts TOML integers, floats and strings. Strings go through the
// same parser as the web form.
type amount struct {
	raw string
	set bool
}

func (a *amount) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case int64:
		a.raw = strconv.FormatInt(x, 10)
	case float64:
		a.raw = strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		a.raw = x
	default:
		return fmt.Errorf("expected a number, got %T", v)
	}
	a.set = true
	return nil
}

func (a amount) decimal() (decimal.Decimal, error) {
	if !a.set {
		return decimal.Zero, nil
	}
	return core.ParseAmount(a.raw)
}

// loadDebtFile reads and validates a debt file. Interest rates in the file
// are percentages.
func loadDebtFile(path string) (*debtFile, []core.Debt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read debt file: %w", err)
	}
	var f debtFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, nil, fmt.Errorf("parse %s: unknown key %q", path, undecoded[0].String())
	}

	debts := make([]core.Debt, 0, len(f.Debts))
	for i, e := range f.Debts {
		d, err := e.toDebt()
		if err != nil {
			return nil, nil, fmt.Errorf("debt %d (%q): %w", i+1, e.Name, err)
		}
		debts = append(debts, d)
	}
	if err := core.ValidateDebts(debts); err != nil {
		return nil, nil, err
	}
	return &f, debts, nil
}

func (e debtEntry) toDebt() (core.Debt, error) {
	d := core.Debt{Name: e.Name}
	var err error
	if !e.Balance.set || !e.MinimumPayment.set {
		return d, fmt.Errorf("balance and minimum_payment are required")
	}
	if d.Balance, err = e.Balance.decimal(); err != nil {
		return d, fmt.Errorf("balance: %w", err)
	}
	if d.MinimumPayment, err = e.MinimumPayment.decimal(); err != nil {
		return d, fmt.Errorf("minimum_payment: %w", err)
	}
	if !e.InterestRate.set {
		return d, core.ErrMissingInterestRate
	}
	if d.InterestRate, err = core.ParsePercentRate(e.InterestRate.raw); err != nil {
		return d, fmt.Errorf("interest_rate: %w", err)
	}
	return d, nil
}
