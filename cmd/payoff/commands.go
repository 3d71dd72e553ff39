package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"winterstorm/internal/core"
	applog "winterstorm/internal/log"
	"winterstorm/internal/payoff"
	"winterstorm/internal/services"
	"winterstorm/internal/sheets/xlsx"
)

type options struct {
	file      string
	strategy  string
	extra     string
	output    string
	maxMonths int
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "payoff",
		Short:        "Plan debt payoff with the avalanche or snowball method",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.file, "file", "f", "debts.toml", "TOML file listing the debts")
	root.PersistentFlags().StringVarP(&opts.extra, "extra", "x", "", "Additional monthly payment (overrides the file)")
	root.PersistentFlags().IntVar(&opts.maxMonths, "max-months", payoff.DefaultMaxMonths, "Give up after this many months")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")

	simulate := &cobra.Command{
		Use:   "simulate",
		Short: "Print the month by month payoff table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	simulate.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "avalanche, snowball or none (overrides the file)")
	simulate.Flags().StringVarP(&opts.output, "output", "o", "", "Also write the table to this .xlsx file")

	compare := &cobra.Command{
		Use:   "compare",
		Short: "Compare avalanche and snowball totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompare(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	root.AddCommand(simulate, compare)
	return root
}

// load reads the debt file and applies flag overrides.
func (o *options) load(stderr io.Writer) (*services.PlanService, services.PlanRequest, error) {
	f, debts, err := loadDebtFile(o.file)
	if err != nil {
		return nil, services.PlanRequest{}, err
	}
	extra, err := f.AdditionalPayment.decimal()
	if err != nil {
		return nil, services.PlanRequest{}, fmt.Errorf("additional_payment: %w", err)
	}
	if o.extra != "" {
		if extra, err = core.ParseAmount(o.extra); err != nil {
			return nil, services.PlanRequest{}, fmt.Errorf("--extra: %w", err)
		}
	}
	strategy := f.Strategy
	if o.strategy != "" {
		strategy = o.strategy
	}
	if strategy == "" {
		strategy = core.Avalanche.String()
	}

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(o.logLevel),
		Component: applog.ComponentCLI,
		Output:    stderr,
	})
	req := services.PlanRequest{
		Debts:             debts,
		Strategy:          core.ParseStrategy(strategy),
		AdditionalPayment: extra,
		SheetName:         core.DefaultSheetName,
	}
	return services.NewPlanService(payoff.New(o.maxMonths), nil, "", nil, logger), req, nil
}

func runSimulate(ctx context.Context, stdout, stderr io.Writer, opts *options) error {
	svc, req, err := opts.load(stderr)
	if err != nil {
		return err
	}
	res, err := svc.Plan(ctx, req)
	if err != nil {
		return err
	}

	if err := printTable(stdout, res.Table); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nStrategy: %s\n", res.Strategy.Label())
	fmt.Fprintf(stdout, "Total interest paid: %s\n", core.FormatMoney(res.TotalInterestPaid))
	fmt.Fprintf(stdout, "Months to debt free: %d\n", res.TotalMonths)

	if opts.output != "" {
		w := xlsx.New(filepath.Dir(opts.output), filepath.Base(opts.output))
		path, err := w.ExportTimeline(ctx, res.Timeline("", req.SheetName))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote %s\n", path)
	}
	return nil
}

func runCompare(ctx context.Context, stdout, stderr io.Writer, opts *options) error {
	svc, req, err := opts.load(stderr)
	if err != nil {
		return err
	}
	cmp, err := svc.Compare(ctx, req)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Strategy\tMonths\tInterest\tOrder")
	for _, r := range []*payoff.Result{cmp.Avalanche, cmp.Snowball} {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Strategy, r.TotalMonths,
			core.FormatMoney(r.TotalInterestPaid), strings.Join(r.Order, " > "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nBest: %s (saves %s in interest", cmp.Best().Strategy.Label(), savings(cmp))
	if cmp.MonthsSaved != 0 {
		fmt.Fprintf(stdout, ", %d months difference", cmp.MonthsSaved)
	}
	fmt.Fprintln(stdout, ")")
	return nil
}

// savings is the interest difference in favour of the best strategy.
func savings(cmp *payoff.Comparison) string {
	return core.FormatMoney(cmp.Avalanche.TotalInterestPaid.Sub(cmp.Snowball.TotalInterestPaid).Abs().Round(2))
}

func printTable(w io.Writer, table [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, row := range table {
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	return tw.Flush()
}
