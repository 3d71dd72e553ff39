package http

import (
	"errors"
	"net/http"

	applog "winterstorm/internal/log"
	"winterstorm/internal/payoff"
	"winterstorm/internal/services"
)

// API error codes.
const (
	codeBadRequest     = "bad_request"
	codeInvalidInput   = "invalid_input"
	codeDidNotConverge = "did_not_converge"
	codeExportFailed   = "export_failed"
	codeNoExporter     = "export_unavailable"
	codeInternal       = "internal_error"
)

type (
	apiError struct {
		Error   string   `json:"error"`
		Message string   `json:"message"`
		Unpaid  []string `json:"unpaid,omitempty"`
	}

	planResponse struct {
		Strategy          string     `json:"strategy"`
		Order             []string   `json:"order"`
		Table             [][]string `json:"table"`
		TotalInterestPaid string     `json:"total_interest_paid"`
		TotalMonths       int        `json:"total_months"`
	}

	compareResponse struct {
		Avalanche     planResponse `json:"avalanche"`
		Snowball      planResponse `json:"snowball"`
		InterestSaved string       `json:"interest_saved"`
		MonthsSaved   int          `json:"months_saved"`
		Best          string       `json:"best"`
	}

	exportResponse struct {
		Ref  string       `json:"ref"`
		Plan planResponse `json:"plan"`
	}
)

func newPlanResponse(res *payoff.Result) planResponse {
	return planResponse{
		Strategy:          res.Strategy.String(),
		Order:             res.Order,
		Table:             res.Table,
		TotalInterestPaid: res.TotalInterestPaid.StringFixed(2),
		TotalMonths:       res.TotalMonths,
	}
}

func (s *Server) handleAPISimulate(w http.ResponseWriter, r *http.Request) {
	req, err := DecodePlanRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: codeBadRequest, Message: err.Error()})
		return
	}
	res, err := s.plans.Plan(r.Context(), req)
	if err != nil {
		s.writePlanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlanResponse(res))
}

func (s *Server) handleAPICompare(w http.ResponseWriter, r *http.Request) {
	req, err := DecodePlanRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: codeBadRequest, Message: err.Error()})
		return
	}
	cmp, err := s.plans.Compare(r.Context(), req)
	if err != nil {
		s.writePlanError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, compareResponse{
		Avalanche:     newPlanResponse(cmp.Avalanche),
		Snowball:      newPlanResponse(cmp.Snowball),
		InterestSaved: cmp.InterestSaved.StringFixed(2),
		MonthsSaved:   cmp.MonthsSaved,
		Best:          cmp.Best().Strategy.String(),
	})
}

// handleAPIExport plans the request and sends it to the export backend. The
// request title prefixes the export name.
func (s *Server) handleAPIExport(w http.ResponseWriter, r *http.Request) {
	req, err := DecodePlanRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: codeBadRequest, Message: err.Error()})
		return
	}
	ref, res, err := s.plans.Export(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, exportResponse{Ref: ref, Plan: newPlanResponse(res)})
	case res == nil:
		s.writePlanError(w, r, err)
	case errors.Is(err, services.ErrNoExporter):
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: codeNoExporter, Message: "no export backend configured"})
	default:
		writeJSON(w, http.StatusBadGateway, apiError{Error: codeExportFailed, Message: "export failed, please try again later"})
	}
}

// writePlanError maps validation and convergence failures to 422 and
// anything else to 500.
func (s *Server) writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	var nc *payoff.NotConvergedError
	switch {
	case errors.As(err, &nc):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Error:   codeDidNotConverge,
			Message: userMessage(err),
			Unpaid:  nc.Unpaid,
		})
	case errors.Is(err, services.ErrInvalidPlan):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: codeInvalidInput, Message: userMessage(err)})
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Plan request failed",
			applog.FieldError, err.Error(),
			applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: codeInternal, Message: "internal error"})
	}
}
