// Package http provides the web UI and JSON API.
//
// This file parses debt entry forms and JSON plan requests into domain
// values.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"winterstorm/internal/core"
	"winterstorm/internal/services"
)

// maxBodyBytes bounds JSON API request bodies.
const maxBodyBytes = 1 << 20

var errMissingFields = errors.New("all fields are required")

// Debt entry form fields.
const (
	fieldName     = "name"
	fieldBalance  = "balance"
	fieldMinimum  = "minimum_payment"
	fieldRate     = "interest_rate"
	fieldStrategy = "strategy"
	fieldExtra    = "additional_payment"
)

// ParseDebtForm builds a debt from the entry form. Every field is required
// and the rate is entered as a percentage.
func ParseDebtForm(form url.Values) (core.Debt, error) {
	name := sanitizeInput(form.Get(fieldName))
	balance := strings.TrimSpace(form.Get(fieldBalance))
	minimum := strings.TrimSpace(form.Get(fieldMinimum))
	rate := strings.TrimSpace(form.Get(fieldRate))
	if name == "" || balance == "" || minimum == "" || rate == "" {
		return core.Debt{}, errMissingFields
	}

	d := core.Debt{Name: name}
	var err error
	if d.Balance, err = core.ParseAmount(balance); err != nil {
		return core.Debt{}, fmt.Errorf("account amount: %w", err)
	}
	if d.MinimumPayment, err = core.ParseAmount(minimum); err != nil {
		return core.Debt{}, fmt.Errorf("monthly minimum payment: %w", err)
	}
	if d.InterestRate, err = core.ParsePercentRate(rate); err != nil {
		return core.Debt{}, fmt.Errorf("interest rate: %w", err)
	}
	return d, nil
}

// ParseAdditionalPayment reads the optional extra monthly payment; blank
// means zero.
func ParseAdditionalPayment(form url.Values) (decimal.Decimal, error) {
	v := strings.TrimSpace(form.Get(fieldExtra))
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := core.ParseAmount(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("additional payment: %w", err)
	}
	return d, nil
}

// planRequestBody is the JSON API request. Amounts accept numbers or
// strings; interest_rate is an annual fraction.
type planRequestBody struct {
	Debts             []core.Debt     `json:"debts"`
	Strategy          string          `json:"strategy"`
	AdditionalPayment decimal.Decimal `json:"additional_payment"`
	Title             string          `json:"title"`
}

// DecodePlanRequest reads a JSON plan request from r.
func DecodePlanRequest(w http.ResponseWriter, r *http.Request) (services.PlanRequest, error) {
	var body planRequestBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return services.PlanRequest{}, errors.New("empty request body")
		}
		return services.PlanRequest{}, err
	}
	for i := range body.Debts {
		body.Debts[i].Name = sanitizeInput(body.Debts[i].Name)
	}
	return services.PlanRequest{
		Debts:             body.Debts,
		Strategy:          core.ParseStrategy(body.Strategy),
		AdditionalPayment: body.AdditionalPayment,
		Title:             sanitizeInput(body.Title),
	}, nil
}
