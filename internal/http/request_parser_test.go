package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"winterstorm/internal/core"
)

func TestParseDebtForm(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		wantErr  error
		wantRate string
	}{
		{
			name:     "all fields",
			form:     url.Values{"name": {" Visa "}, "balance": {"1200"}, "minimum_payment": {"100"}, "interest_rate": {"18"}},
			wantRate: "0.18",
		},
		{
			name:     "comma decimals",
			form:     url.Values{"name": {"Car"}, "balance": {"8000,50"}, "minimum_payment": {"250"}, "interest_rate": {"5,9"}},
			wantRate: "0.059",
		},
		{
			name:    "missing rate",
			form:    url.Values{"name": {"Visa"}, "balance": {"1200"}, "minimum_payment": {"100"}},
			wantErr: errMissingFields,
		},
		{
			name:    "missing name",
			form:    url.Values{"balance": {"1200"}, "minimum_payment": {"100"}, "interest_rate": {"18"}},
			wantErr: errMissingFields,
		},
		{
			name:    "bad amount",
			form:    url.Values{"name": {"Visa"}, "balance": {"12a"}, "minimum_payment": {"100"}, "interest_rate": {"18"}},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "negative rate",
			form:    url.Values{"name": {"Visa"}, "balance": {"100"}, "minimum_payment": {"10"}, "interest_rate": {"-1"}},
			wantErr: core.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDebtForm(tt.form)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.TrimSpace(d.Name) != d.Name {
				t.Fatalf("name not trimmed: %q", d.Name)
			}
			if !d.InterestRate.Valid || !d.InterestRate.Decimal.Equal(decimal.RequireFromString(tt.wantRate)) {
				t.Fatalf("expected rate %s, got %v", tt.wantRate, d.InterestRate)
			}
		})
	}
}

func TestParseAdditionalPayment(t *testing.T) {
	got, err := ParseAdditionalPayment(url.Values{})
	if err != nil || !got.IsZero() {
		t.Fatalf("blank should be zero, got %s (%v)", got, err)
	}
	got, err = ParseAdditionalPayment(url.Values{"additional_payment": {"50.5"}})
	if err != nil || !got.Equal(decimal.RequireFromString("50.5")) {
		t.Fatalf("expected 50.5, got %s (%v)", got, err)
	}
	if _, err := ParseAdditionalPayment(url.Values{"additional_payment": {"lots"}}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestDecodePlanRequest(t *testing.T) {
	body := `{"debts":[{"name":"A","balance":"100","minimum_payment":100,"interest_rate":"0.18"}],"strategy":"SNOWBALL","additional_payment":"25"}`
	r := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(body))
	req, err := DecodePlanRequest(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if req.Strategy != core.Snowball {
		t.Fatalf("expected snowball, got %s", req.Strategy)
	}
	if len(req.Debts) != 1 || !req.Debts[0].MinimumPayment.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected debts: %+v", req.Debts)
	}
	if !req.AdditionalPayment.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected additional payment 25, got %s", req.AdditionalPayment)
	}

	for _, bad := range []string{"", "{", `{"debts": "nope"}`} {
		r := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(bad))
		if _, err := DecodePlanRequest(httptest.NewRecorder(), r); err == nil {
			t.Fatalf("expected error for body %q", bad)
		}
	}
}

func TestUserMessage(t *testing.T) {
	if got := userMessage(core.ErrMinimumExceedsBalance); got != "Minimum payment cannot exceed debt amount" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := userMessage(errors.New("interest rate: invalid amount")); got != "Interest rate: invalid amount" {
		t.Fatalf("unexpected message %q", got)
	}
}
