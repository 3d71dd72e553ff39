package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"winterstorm/internal/core"
	applog "winterstorm/internal/log"
	"winterstorm/internal/metrics"
	"winterstorm/internal/payoff"
	"winterstorm/internal/sheets"
)

var (
	// ErrInvalidPlan wraps every input validation failure.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrNoExporter is returned by Export when no backend is configured.
	ErrNoExporter = errors.New("no export backend configured")
)

// maxTitleBase leaves room for the export suffix inside Google's 100
// character tab title limit.
const maxTitleBase = 60

// PlanRequest is one payoff question: these debts, this ordering, this much
// extra each month.
type PlanRequest struct {
	Debts             []core.Debt
	Strategy          core.Strategy
	AdditionalPayment decimal.Decimal
	// Title prefixes the export name; SheetName defaults to the full
	// export name.
	Title     string
	SheetName string
}

// Validate runs the checks the simulator expects callers to make.
func (r PlanRequest) Validate() error {
	if err := core.ValidateDebts(r.Debts); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := core.ValidateAdditionalPayment(r.AdditionalPayment); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	return nil
}

// PlanService orchestrates validation, simulation and export.
type PlanService struct {
	simulator *payoff.Simulator
	exporter  sheets.TimelineExporter
	backend   string
	metrics   *metrics.Metrics
	logger    *applog.Logger
	events    *applog.StructuredLogger
	now       func() time.Time
}

// NewPlanService wires a service. exporter may be nil, in which case Export
// returns ErrNoExporter; m may be nil.
func NewPlanService(sim *payoff.Simulator, exporter sheets.TimelineExporter, backend string, m *metrics.Metrics, logger *applog.Logger) *PlanService {
	if sim == nil {
		sim = payoff.New(payoff.DefaultMaxMonths)
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentPlan)
	return &PlanService{
		simulator: sim,
		exporter:  exporter,
		backend:   backend,
		metrics:   m,
		logger:    logger,
		events:    applog.NewStructuredLogger(logger),
		now:       time.Now,
	}
}

// Backend names the configured export backend.
func (s *PlanService) Backend() string {
	return s.backend
}

// MaxMonths is the simulation cap in effect.
func (s *PlanService) MaxMonths() int {
	if s.simulator.MaxMonths <= 0 {
		return payoff.DefaultMaxMonths
	}
	return s.simulator.MaxMonths
}

// Plan validates the request and simulates it.
func (s *PlanService) Plan(ctx context.Context, req PlanRequest) (*payoff.Result, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveSimulation(req.Strategy.String(), metrics.OutcomeInvalid, 0, 0)
		return nil, err
	}
	return s.simulate(ctx, req.Debts, req.Strategy, req.AdditionalPayment)
}

func (s *PlanService) simulate(ctx context.Context, debts []core.Debt, strategy core.Strategy, extra decimal.Decimal) (*payoff.Result, error) {
	start := time.Now()
	res, err := s.simulator.Simulate(debts, strategy, extra)
	elapsed := time.Since(start)
	if err != nil {
		s.observeFailure(ctx, strategy, err, elapsed)
		return nil, fmt.Errorf("simulate %s: %w", strategy, err)
	}

	s.metrics.ObserveSimulation(strategy.String(), metrics.OutcomeOK, res.TotalMonths, elapsed)
	s.events.LogPlanComputed(ctx, strategy.String(), len(debts), res.TotalMonths,
		res.TotalInterestPaid.StringFixed(2), extra.StringFixed(2))
	return res, nil
}

func (s *PlanService) observeFailure(ctx context.Context, strategy core.Strategy, err error, elapsed time.Duration) {
	var nc *payoff.NotConvergedError
	if errors.As(err, &nc) {
		s.metrics.ObserveSimulation(strategy.String(), metrics.OutcomeDidNotConverge, 0, elapsed)
		s.logger.WarnContext(ctx, "Payoff plan did not converge",
			applog.FieldStrategy, strategy.String(),
			"max_months", nc.MaxMonths,
			"unpaid", strings.Join(nc.Unpaid, ", "))
		return
	}
	s.metrics.ObserveSimulation(strategy.String(), metrics.OutcomeError, 0, elapsed)
	s.events.LogError(ctx, "Payoff simulation failed", err, applog.ComponentPlan, applog.OpSimulate,
		applog.LogFields{applog.FieldStrategy: strategy.String()})
}

// Compare simulates avalanche and snowball for the same debts.
func (s *PlanService) Compare(ctx context.Context, req PlanRequest) (*payoff.Comparison, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	av, err := s.simulate(ctx, req.Debts, core.Avalanche, req.AdditionalPayment)
	if err != nil {
		return nil, err
	}
	sb, err := s.simulate(ctx, req.Debts, core.Snowball, req.AdditionalPayment)
	if err != nil {
		return nil, err
	}
	cmp := payoff.NewComparison(av, sb)
	s.logger.InfoContext(ctx, "Strategies compared",
		applog.FieldOperation, applog.OpCompare,
		applog.FieldDebtCount, len(req.Debts),
		"interest_saved", cmp.InterestSaved.StringFixed(2),
		"months_saved", cmp.MonthsSaved,
		"best", cmp.Best().Strategy.String())
	return cmp, nil
}

// Export plans the request and hands the table to the export backend. The
// result is returned even when the export fails so callers can still show it.
func (s *PlanService) Export(ctx context.Context, req PlanRequest) (string, *payoff.Result, error) {
	res, err := s.Plan(ctx, req)
	if err != nil {
		return "", nil, err
	}
	if s.exporter == nil {
		return "", res, ErrNoExporter
	}

	title := s.exportTitle(req.Title)
	sheet := strings.TrimSpace(req.SheetName)
	if sheet == "" {
		sheet = title
	}
	ref, err := s.exporter.ExportTimeline(ctx, res.Timeline(title, sheet))
	s.metrics.ObserveExport(s.backend, err)
	if err != nil {
		s.events.LogError(ctx, "Timeline export failed", err, applog.ComponentSheets, applog.OpExport,
			applog.LogFields{applog.FieldBackend: s.backend, applog.FieldStrategy: req.Strategy.String()})
		return "", res, fmt.Errorf("export timeline: %w", err)
	}

	s.logger.InfoContext(ctx, "Timeline exported",
		applog.FieldOperation, applog.OpExport,
		applog.FieldBackend, s.backend,
		applog.FieldExportRef, ref)
	return ref, res, nil
}

// exportTitle names one export: the caller's title, or the default sheet
// name, followed by a UTC timestamp and a short random id so that exports
// never share a file or tab.
func (s *PlanService) exportTitle(base string) string {
	base = strings.TrimSpace(base)
	if r := []rune(base); len(r) > maxTitleBase {
		base = strings.TrimSpace(string(r[:maxTitleBase]))
	}
	if base == "" {
		base = core.DefaultSheetName
	}
	return fmt.Sprintf("%s %s %s", base, s.now().UTC().Format("20060102-150405"), uuid.NewString()[:8])
}
