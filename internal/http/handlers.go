package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"winterstorm/internal/core"
	applog "winterstorm/internal/log"
	"winterstorm/internal/payoff"
	"winterstorm/internal/services"
	"winterstorm/internal/sheets/xlsx"
)

// previewMonths is how many rows of the schedule the page shows.
const previewMonths = 24

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type (
	debtRow struct {
		Name, Balance, Minimum, Rate string
	}

	strategyOption struct {
		Value, Label string
		Selected     bool
	}

	planSummary struct {
		Months    int
		Interest  string
		Order     []string
		Header    []string
		Rows      [][]string
		Truncated bool
	}

	indexData struct {
		Debts             []debtRow
		Strategies        []strategyOption
		StrategyLabel     string
		AdditionalPayment string
		Flash             string
		FlashError        bool
		Summary           *planSummary
		PlanError         string
		Backend           string
	}
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"templates": "ok",
		"sessions":  map[string]any{"active": s.sessions.size()},
		"rate_limiter": map[string]any{
			"active_clients": s.rateLimiter.ActiveClients(),
			"rejected":       s.rateLimiter.GetMetrics().Rejected,
		},
	}

	backend := map[string]any{"type": s.plans.Backend(), "status": "ok"}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			backend["status"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	checks["backend"] = backend

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.id(w, r)
	sess := s.sessions.takeFlash(id)

	data := indexData{
		StrategyLabel:     sess.Strategy.Label(),
		AdditionalPayment: sess.AdditionalPayment.StringFixed(2),
		Flash:             sess.Flash,
		FlashError:        sess.FlashError,
		Backend:           s.plans.Backend(),
	}
	for _, st := range []core.Strategy{core.Avalanche, core.Snowball, core.NoOrder} {
		data.Strategies = append(data.Strategies, strategyOption{
			Value:    st.String(),
			Label:    st.Label(),
			Selected: st == sess.Strategy,
		})
	}
	for _, d := range payoff.SortDebts(sess.Debts, sess.Strategy) {
		data.Debts = append(data.Debts, debtRow{
			Name:    d.Name,
			Balance: core.FormatMoney(d.Balance),
			Minimum: core.FormatMoney(d.MinimumPayment),
			Rate:    d.RatePercent(),
		})
	}

	if len(sess.Debts) > 0 {
		res, err := s.plans.Plan(r.Context(), planRequest(sess))
		if err != nil {
			data.PlanError = userMessage(err)
		} else {
			data.Summary = summarize(res)
		}
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed",
			applog.FieldError, err.Error(),
			applog.FieldOperation, applog.OpRender)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleAddDebt(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.id(w, r)
	if err := r.ParseForm(); err != nil {
		s.flashAndRedirect(w, r, id, "Invalid form submission", true)
		return
	}

	d, err := ParseDebtForm(r.PostForm)
	if err == nil {
		err = d.Validate()
	}
	if err != nil {
		s.flashAndRedirect(w, r, id, userMessage(err), true)
		return
	}

	var addErr error
	s.sessions.update(id, func(sess *session) {
		next := append(sess.Debts, d)
		if addErr = core.ValidateDebts(next); addErr != nil {
			return
		}
		sess.Debts = next
		sess.Flash, sess.FlashError = "Added "+d.Name, false
	})
	if addErr != nil {
		s.flashAndRedirect(w, r, id, userMessage(addErr), true)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleClearDebts(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.id(w, r)
	s.sessions.update(id, func(sess *session) {
		sess.Debts = nil
	})
	s.flashAndRedirect(w, r, id, "All accounts removed", false)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.id(w, r)
	if err := r.ParseForm(); err != nil {
		s.flashAndRedirect(w, r, id, "Invalid form submission", true)
		return
	}
	extra, err := ParseAdditionalPayment(r.PostForm)
	if err == nil {
		err = core.ValidateAdditionalPayment(extra)
	}
	if err != nil {
		s.flashAndRedirect(w, r, id, userMessage(err), true)
		return
	}
	strategy := core.ParseStrategy(r.PostForm.Get(fieldStrategy))
	s.sessions.update(id, func(sess *session) {
		sess.Strategy = strategy
		sess.AdditionalPayment = extra
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleTimelineXLSX streams the schedule as a workbook download.
func (s *Server) handleTimelineXLSX(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.id(w, r)
	sess := s.sessions.get(id)

	res, err := s.plans.Plan(r.Context(), planRequest(sess))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrInvalidPlan) || errors.Is(err, payoff.ErrDidNotConverge) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, userMessage(err), status)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.WriteTo(&buf, res.Timeline("", core.DefaultSheetName)); err != nil {
		s.logger.ErrorContext(r.Context(), "Workbook rendering failed",
			applog.FieldError, err.Error(),
			applog.FieldOperation, applog.OpExport)
		http.Error(w, "could not build workbook", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+core.DefaultFileName+`"`)
	_, _ = buf.WriteTo(w)
}

// handleExport sends the schedule to the configured export backend.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.id(w, r)
	sess := s.sessions.get(id)

	ref, _, err := s.plans.Export(r.Context(), planRequest(sess))
	if err != nil {
		msg := userMessage(err)
		if !errors.Is(err, services.ErrInvalidPlan) && !errors.Is(err, payoff.ErrDidNotConverge) {
			msg = "Export failed, please try again later"
		}
		s.flashAndRedirect(w, r, id, msg, true)
		return
	}
	s.flashAndRedirect(w, r, id, "Debt timeline exported: "+ref, false)
}

func (s *Server) flashAndRedirect(w http.ResponseWriter, r *http.Request, id, msg string, isErr bool) {
	s.sessions.update(id, func(sess *session) {
		sess.Flash, sess.FlashError = msg, isErr
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func planRequest(sess session) services.PlanRequest {
	return services.PlanRequest{
		Debts:             sess.Debts,
		Strategy:          sess.Strategy,
		AdditionalPayment: sess.AdditionalPayment,
	}
}

func summarize(res *payoff.Result) *planSummary {
	rows := res.Rows()
	sum := &planSummary{
		Months:   res.TotalMonths,
		Interest: core.FormatMoney(res.TotalInterestPaid),
		Order:    res.Order,
		Header:   res.Header(),
		Rows:     rows,
	}
	if len(rows) > previewMonths {
		sum.Rows = rows[:previewMonths]
		sum.Truncated = true
	}
	return sum
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
