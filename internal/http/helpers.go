package http

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"winterstorm/internal/core"
	"winterstorm/internal/payoff"
	"winterstorm/internal/services"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// userMessage turns a validation or simulation error into a sentence for
// the page. Wrapping prefixes added by the service are dropped.
func userMessage(err error) string {
	var nc *payoff.NotConvergedError
	switch {
	case errors.As(err, &nc):
		return "These debts are not paid off within " + strconv.Itoa(nc.MaxMonths) +
			" months: interest grows faster than the payments on " + strings.Join(nc.Unpaid, ", ") + "."
	case errors.Is(err, core.ErrMinimumExceedsBalance):
		return "Minimum payment cannot exceed debt amount"
	case errors.Is(err, core.ErrDuplicateName):
		return "An account with that name already exists"
	case errors.Is(err, core.ErrNoDebts):
		return "Add at least one account first"
	case errors.Is(err, errMissingFields):
		return "All fields are required"
	}

	msg := err.Error()
	msg = strings.TrimPrefix(msg, services.ErrInvalidPlan.Error()+": ")
	return capitalize(msg)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
