package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"winterstorm/internal/core"
	applog "winterstorm/internal/log"
	"winterstorm/internal/metrics"
	"winterstorm/internal/payoff"
	"winterstorm/internal/sheets/memory"
	"winterstorm/internal/sheets/xlsx"
)

func debt(name, balance, min, rate string) core.Debt {
	return core.Debt{
		Name:           name,
		Balance:        decimal.RequireFromString(balance),
		MinimumPayment: decimal.RequireFromString(min),
		InterestRate:   decimal.NewNullDecimal(decimal.RequireFromString(rate)),
	}
}

func testLogger(buf *bytes.Buffer) *applog.Logger {
	return applog.New(applog.Config{Level: applog.ParseLevel("debug"), Output: buf})
}

type failingExporter struct{ err error }

func (f failingExporter) ExportTimeline(context.Context, core.Timeline) (string, error) {
	return "", f.err
}

func TestPlanRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     PlanRequest
		wantErr error
	}{
		{
			name: "valid",
			req:  PlanRequest{Debts: []core.Debt{debt("A", "100", "10", "0.1")}},
		},
		{
			name:    "no debts",
			req:     PlanRequest{},
			wantErr: core.ErrNoDebts,
		},
		{
			name:    "minimum exceeds balance",
			req:     PlanRequest{Debts: []core.Debt{debt("A", "100", "150", "0.1")}},
			wantErr: core.ErrMinimumExceedsBalance,
		},
		{
			name:    "duplicate names",
			req:     PlanRequest{Debts: []core.Debt{debt("A", "100", "10", "0.1"), debt("a", "50", "5", "0")}},
			wantErr: core.ErrDuplicateName,
		},
		{
			name: "negative additional payment",
			req: PlanRequest{
				Debts:             []core.Debt{debt("A", "100", "10", "0.1")},
				AdditionalPayment: decimal.NewFromInt(-5),
			},
			wantErr: core.ErrNegativeAdditionalPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidPlan) {
				t.Fatalf("expected ErrInvalidPlan, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPlanService_Plan(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New()
	svc := NewPlanService(payoff.New(0), nil, "memory", m, testLogger(&buf))

	res, err := svc.Plan(context.Background(), PlanRequest{
		Debts:    []core.Debt{debt("A", "1200", "100", "0")},
		Strategy: core.Snowball,
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if res.TotalMonths != 12 {
		t.Fatalf("expected 12 months, got %d", res.TotalMonths)
	}
	if !strings.Contains(buf.String(), "Payoff plan computed") || !strings.Contains(buf.String(), "total_months=12") {
		t.Fatalf("expected plan log line, got %q", buf.String())
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "winterstorm_simulations_total"); err != nil || n != 1 {
		t.Fatalf("expected one simulation series, got %d (%v)", n, err)
	}
	if svc.MaxMonths() != payoff.DefaultMaxMonths {
		t.Fatalf("expected default cap, got %d", svc.MaxMonths())
	}
}

func TestPlanService_PlanInvalid(t *testing.T) {
	svc := NewPlanService(nil, nil, "memory", nil, testLogger(&bytes.Buffer{}))
	_, err := svc.Plan(context.Background(), PlanRequest{Debts: []core.Debt{{Name: "A"}}})
	if !errors.Is(err, ErrInvalidPlan) || !errors.Is(err, core.ErrInvalidBalance) {
		t.Fatalf("expected invalid balance, got %v", err)
	}
}

func TestPlanService_PlanDidNotConverge(t *testing.T) {
	var buf bytes.Buffer
	svc := NewPlanService(payoff.New(24), nil, "memory", metrics.New(), testLogger(&buf))

	_, err := svc.Plan(context.Background(), PlanRequest{
		Debts: []core.Debt{
			debt("Fine", "100", "50", "0"),
			debt("Stuck", "10000", "10", "0.5"),
		},
		Strategy: core.NoOrder,
	})
	if !errors.Is(err, payoff.ErrDidNotConverge) {
		t.Fatalf("expected ErrDidNotConverge, got %v", err)
	}
	var nc *payoff.NotConvergedError
	if !errors.As(err, &nc) || nc.MaxMonths != 24 {
		t.Fatalf("expected NotConvergedError at 24 months, got %v", err)
	}
	if !strings.Contains(buf.String(), "did not converge") || !strings.Contains(buf.String(), "Stuck") {
		t.Fatalf("expected warning naming the unpaid debt, got %q", buf.String())
	}
}

func TestPlanService_Compare(t *testing.T) {
	svc := NewPlanService(nil, nil, "memory", nil, testLogger(&bytes.Buffer{}))
	cmp, err := svc.Compare(context.Background(), PlanRequest{
		Debts: []core.Debt{
			debt("Low", "5000", "100", "0.05"),
			debt("High", "5000", "100", "0.25"),
		},
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp.Avalanche.Strategy != core.Avalanche || cmp.Snowball.Strategy != core.Snowball {
		t.Fatalf("unexpected strategies: %s / %s", cmp.Avalanche.Strategy, cmp.Snowball.Strategy)
	}
	if cmp.Avalanche.Order[0] != "High" {
		t.Fatalf("avalanche should pay High first, got %v", cmp.Avalanche.Order)
	}
	if cmp.InterestSaved.IsNegative() {
		t.Fatalf("interest saved must not be negative: %s", cmp.InterestSaved)
	}
	best := cmp.Best()
	other := cmp.Avalanche
	if best == cmp.Avalanche {
		other = cmp.Snowball
	}
	if best.TotalInterestPaid.GreaterThan(other.TotalInterestPaid) {
		t.Fatalf("best plan pays more interest: %s > %s", best.TotalInterestPaid, other.TotalInterestPaid)
	}
}

func TestPlanService_Export(t *testing.T) {
	store := memory.New()
	m := metrics.New()
	svc := NewPlanService(nil, store, "memory", m, testLogger(&bytes.Buffer{}))

	ref, res, err := svc.Export(context.Background(), PlanRequest{
		Debts:     []core.Debt{debt("A", "300", "100", "0")},
		Strategy:  core.Avalanche,
		SheetName: "Plan",
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if ref != "mem:1" {
		t.Fatalf("expected mem:1, got %q", ref)
	}
	items, _ := store.ListTimelines(context.Background())
	if len(items) != 1 {
		t.Fatalf("expected one exported timeline, got %d", len(items))
	}
	got := items[0]
	if got.SheetName != "Plan" || !strings.HasPrefix(got.Title, core.DefaultSheetName+" ") || got.TotalMonths != res.TotalMonths {
		t.Fatalf("unexpected exported timeline: %+v", got)
	}
	if len(got.Rows) != res.TotalMonths+1 {
		t.Fatalf("expected header plus %d rows, got %d", res.TotalMonths, len(got.Rows))
	}
	if n, _ := testutil.GatherAndCount(m.Registry(), "winterstorm_exports_total"); n != 1 {
		t.Fatalf("expected one export series, got %d", n)
	}
}

func TestPlanService_ExportNames(t *testing.T) {
	store := memory.New()
	svc := NewPlanService(nil, store, "memory", nil, testLogger(&bytes.Buffer{}))
	svc.now = func() time.Time { return time.Date(2026, 10, 17, 12, 30, 5, 0, time.UTC) }
	debts := []core.Debt{debt("A", "300", "100", "0")}

	tests := []struct {
		name   string
		title  string
		sheet  string
		prefix string
	}{
		{"default title", "", "", "Debt Timeline 20261017-123005 "},
		{"caller title", "  Household  ", "", "Household 20261017-123005 "},
		{"long title is cut", strings.Repeat("x", 80), "", strings.Repeat("x", maxTitleBase) + " 20261017-123005 "},
		{"explicit sheet", "Household", "Plan", "Household 20261017-123005 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Export(context.Background(), PlanRequest{Debts: debts, Title: tt.title, SheetName: tt.sheet}); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			items, _ := store.ListTimelines(context.Background())
			got := items[len(items)-1]
			if !strings.HasPrefix(got.Title, tt.prefix) || len(got.Title) != len(tt.prefix)+8 {
				t.Fatalf("title %q does not match %q plus an id", got.Title, tt.prefix)
			}
			wantSheet := got.Title
			if tt.sheet != "" {
				wantSheet = tt.sheet
			}
			if got.SheetName != wantSheet {
				t.Fatalf("sheet = %q, want %q", got.SheetName, wantSheet)
			}
		})
	}

	items, _ := store.ListTimelines(context.Background())
	seen := make(map[string]bool)
	for _, it := range items {
		if seen[it.Title] {
			t.Fatalf("duplicate export title %q", it.Title)
		}
		seen[it.Title] = true
	}
}

func TestPlanService_ExportsDoNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	svc := NewPlanService(nil, xlsx.New(dir, ""), "xlsx", nil, testLogger(&bytes.Buffer{}))

	refA, _, err := svc.Export(context.Background(), PlanRequest{Debts: []core.Debt{debt("Alice-Card", "300", "100", "0")}})
	if err != nil {
		t.Fatalf("first export: %v", err)
	}
	refB, _, err := svc.Export(context.Background(), PlanRequest{Debts: []core.Debt{debt("Bob-Car", "300", "100", "0")}})
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if refA == refB {
		t.Fatalf("both exports wrote %s", refA)
	}

	for ref, want := range map[string]string{refA: "Alice-Card", refB: "Bob-Car"} {
		f, err := excelize.OpenFile(ref)
		if err != nil {
			t.Fatalf("open %s: %v", ref, err)
		}
		rows, err := f.GetRows(f.GetSheetName(0))
		f.Close()
		if err != nil {
			t.Fatalf("read %s: %v", ref, err)
		}
		if len(rows) == 0 || len(rows[0]) < 2 || rows[0][1] != want {
			t.Fatalf("%s holds %v, want header %q", ref, rows, want)
		}
	}
}

func TestPlanService_ExportFailures(t *testing.T) {
	req := PlanRequest{Debts: []core.Debt{debt("A", "300", "100", "0")}}

	t.Run("no exporter", func(t *testing.T) {
		svc := NewPlanService(nil, nil, "", nil, testLogger(&bytes.Buffer{}))
		_, res, err := svc.Export(context.Background(), req)
		if !errors.Is(err, ErrNoExporter) {
			t.Fatalf("expected ErrNoExporter, got %v", err)
		}
		if res == nil {
			t.Fatal("result should still be returned")
		}
	})

	t.Run("backend error", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		svc := NewPlanService(nil, failingExporter{err: boom}, "sheets", nil, testLogger(&bytes.Buffer{}))
		ref, res, err := svc.Export(context.Background(), req)
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped backend error, got %v", err)
		}
		if ref != "" || res == nil {
			t.Fatalf("unexpected ref %q / result %v", ref, res)
		}
	})

	t.Run("invalid input is not exported", func(t *testing.T) {
		store := memory.New()
		svc := NewPlanService(nil, store, "memory", nil, testLogger(&bytes.Buffer{}))
		_, _, err := svc.Export(context.Background(), PlanRequest{})
		if !errors.Is(err, ErrInvalidPlan) {
			t.Fatalf("expected ErrInvalidPlan, got %v", err)
		}
		if store.Len() != 0 {
			t.Fatal("nothing should be exported")
		}
	})
}
