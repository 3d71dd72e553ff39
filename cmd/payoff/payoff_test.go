package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"winterstorm/internal/core"
	"winterstorm/internal/payoff"
)

func writeDebtFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debts.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleDebts = `
strategy = "snowball"

[[debt]]
name = "A"
balance = 1000
minimum_payment = 100
interest_rate = 0

[[debt]]
name = "B"
balance = "1000.00"
minimum_payment = 50.0
interest_rate = "0"
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadDebtFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		wantMsg string
	}{
		{name: "valid", content: sampleDebts},
		{name: "no debts", content: `strategy = "avalanche"`, wantErr: core.ErrNoDebts},
		{
			name:    "missing rate",
			content: "[[debt]]\nname = \"A\"\nbalance = 100\nminimum_payment = 10\n",
			wantErr: core.ErrMissingInterestRate,
		},
		{
			name:    "negative balance",
			content: "[[debt]]\nname = \"A\"\nbalance = -100\nminimum_payment = 10\ninterest_rate = 5\n",
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "minimum over balance",
			content: "[[debt]]\nname = \"A\"\nbalance = 100\nminimum_payment = 200\ninterest_rate = 5\n",
			wantErr: core.ErrMinimumExceedsBalance,
		},
		{
			name:    "unknown key",
			content: "[[debt]]\nname = \"A\"\nbalance = 100\nminimum_payment = 10\ninterest_rate = 5\ncolor = \"red\"\n",
			wantMsg: "unknown key",
		},
		{
			name:    "wrong type",
			content: "[[debt]]\nname = \"A\"\nbalance = true\nminimum_payment = 10\ninterest_rate = 5\n",
			wantMsg: "expected a number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, debts, err := loadDebtFile(writeDebtFile(t, tt.content))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.wantMsg != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
					t.Fatalf("expected error containing %q, got %v", tt.wantMsg, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(debts) != 2 || debts[1].Balance.String() != "1000" || !debts[0].InterestRate.Valid {
					t.Fatalf("unexpected debts: %+v", debts)
				}
			}
		})
	}
}

func TestLoadDebtFileRateIsPercent(t *testing.T) {
	path := writeDebtFile(t, "[[debt]]\nname = \"Visa\"\nbalance = 3000\nminimum_payment = 90\ninterest_rate = 22.99\n")
	_, debts, err := loadDebtFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := debts[0].RatePercent(); got != "22.99%" {
		t.Fatalf("expected 22.99%%, got %s", got)
	}
}

func TestSimulateCommand(t *testing.T) {
	path := writeDebtFile(t, sampleDebts)
	xlsxPath := filepath.Join(t.TempDir(), "plan.xlsx")

	out, err := run(t, "simulate", "-f", path, "-o", xlsxPath)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for _, want := range []string{"Month 13", "Months to debt free: 13", "Total interest paid: $0.00", "Snowball"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(core.DefaultSheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 14 {
		t.Fatalf("expected 14 rows, got %d", len(rows))
	}
}

func TestSimulateFlagsOverrideFile(t *testing.T) {
	path := writeDebtFile(t, sampleDebts)

	out, err := run(t, "simulate", "-f", path, "-s", "avalanche", "-x", "100")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Avalanche") || strings.Contains(out, "Month 13") {
		t.Fatalf("expected a shorter avalanche plan:\n%s", out)
	}
}

func TestSimulateDidNotConverge(t *testing.T) {
	path := writeDebtFile(t, "[[debt]]\nname = \"Stuck\"\nbalance = 10000\nminimum_payment = 10\ninterest_rate = 50\n")

	_, err := run(t, "simulate", "-f", path, "--max-months", "12")
	if !errors.Is(err, payoff.ErrDidNotConverge) {
		t.Fatalf("expected ErrDidNotConverge, got %v", err)
	}
}

func TestCompareCommand(t *testing.T) {
	path := writeDebtFile(t, `
[[debt]]
name = "Low"
balance = 2000
minimum_payment = 100
interest_rate = 5

[[debt]]
name = "High"
balance = 3000
minimum_payment = 100
interest_rate = 25
`)

	out, err := run(t, "compare", "-f", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"avalanche", "snowball", "High > Low", "Low > High", "Best:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
