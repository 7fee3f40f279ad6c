package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ubillity/internal/core"
	"ubillity/internal/log"
	"ubillity/internal/storage"
)

// billJSON is the wire representation of a bill.
type billJSON struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  *string         `json:"description"`
	Amount       json.Number     `json:"amount"`
	Type         core.BillType   `json:"type"`
	Category     *core.Category  `json:"category"`
	DueDate      core.Date       `json:"due_date"`
	Reconciled   bool            `json:"reconciled"`
	Recurrence   core.Recurrence `json:"recurrence"`
	RecurrenceID *string         `json:"recurrence_id"`
}

func toBillJSON(b core.Bill) billJSON {
	out := billJSON{
		ID:         b.ID,
		Name:       b.Name,
		Amount:     json.Number(b.Amount.String()),
		Type:       b.Type,
		DueDate:    b.DueDate,
		Reconciled: b.Reconciled,
		Recurrence: b.Recurrence,
	}
	if b.Description != "" {
		d := b.Description
		out.Description = &d
	}
	if b.Category != "" {
		c := b.Category
		out.Category = &c
	}
	if b.RecurrenceID.Valid {
		rid := b.RecurrenceID.UUID.String()
		out.RecurrenceID = &rid
	}
	return out
}

type typeTotalJSON struct {
	Type   core.BillType `json:"type"`
	Amount json.Number   `json:"amount"`
	Count  int           `json:"count"`
}

type summaryJSON struct {
	Count        int             `json:"count"`
	Unreconciled int             `json:"unreconciled"`
	ByType       []typeTotalJSON `json:"by_type"`
}

func toSummaryJSON(sum core.Summary) summaryJSON {
	out := summaryJSON{
		Count:        sum.Count,
		Unreconciled: sum.Unreconciled,
		ByType:       make([]typeTotalJSON, 0, len(sum.ByType)),
	}
	for _, t := range sum.ByType {
		out.ByType = append(out.ByType, typeTotalJSON{Type: t.Type, Amount: json.Number(t.Amount.String()), Count: t.Count})
	}
	return out
}

func billLocation(id int64) string {
	return "/api/bills/" + strconv.FormatInt(id, 10) + "/"
}

func (s *Server) handleAPIListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.bills.ListBills(r.Context())
	if err != nil {
		s.writeAPIError(w, r, err, log.OpList)
		return
	}
	out := make([]billJSON, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillJSON(b))
	}
	NewJSONResponse().JSON(out).Write(w)
}

func (s *Server) handleAPICreateBill(w http.ResponseWriter, r *http.Request) {
	in, ok := parseAPIInput(w, r)
	if !ok {
		return
	}

	res, err := s.bills.CreateBill(r.Context(), in)
	if err != nil {
		s.writeAPIError(w, r, err, log.OpCreate)
		return
	}

	b := res.Bill
	log.NewStructuredLogger(log.FromContext(r.Context()).WithComponent(log.ComponentAPI)).
		LogBillsCreated(r.Context(), b.ID, b.Name, string(b.Type), string(b.Recurrence), recurrenceIDOf(b), res.Count)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", billLocation(b.ID)).
		Header("X-Series-Count", strconv.Itoa(res.Count)).
		JSON(toBillJSON(b)).
		Write(w)
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.bills.Summary(r.Context())
	if err != nil {
		s.writeAPIError(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().JSON(toSummaryJSON(sum)).Write(w)
}

func (s *Server) handleAPIGetBill(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		NotFoundError("bill not found").Write(w)
		return
	}
	b, err := s.bills.GetBill(r.Context(), id)
	if err != nil {
		s.writeAPIError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().JSON(toBillJSON(b)).Write(w)
}

// handleAPIUpdateBill serves PUT (partial=false) and PATCH (partial=true).
func (s *Server) handleAPIUpdateBill(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			NotFoundError("bill not found").Write(w)
			return
		}
		in, ok := parseAPIInput(w, r)
		if !ok {
			return
		}
		b, err := s.bills.UpdateBill(r.Context(), id, in, partial)
		if err != nil {
			s.writeAPIError(w, r, err, log.OpUpdate)
			return
		}
		NewJSONResponse().JSON(toBillJSON(b)).Write(w)
	}
}

func (s *Server) handleAPIDeleteBill(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		NotFoundError("bill not found").Write(w)
		return
	}
	deleteSeries, err := parseDeleteSeries(r.URL.Query().Get("delete_series"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	n, err := s.bills.DeleteBill(r.Context(), id, deleteSeries)
	if err != nil {
		s.writeAPIError(w, r, err, log.OpDelete)
		return
	}
	NewJSONResponse().
		Status(http.StatusNoContent).
		Header("X-Deleted-Count", strconv.FormatInt(n, 10)).
		Write(w)
}

func handleAPIMethodNotAllowed(allowed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError(allowed).Write(w)
	}
}

// parseAPIInput writes a 400 response and returns false when the body is unusable.
func parseAPIInput(w http.ResponseWriter, r *http.Request) (core.BillInput, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, err.Error()).Write(w)
			return core.BillInput{}, false
		}
		BadRequestError("malformed request body").Write(w)
		return core.BillInput{}, false
	}
	in, err := p.BillInput()
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			ValidationErrorResponse(verr).Write(w)
		} else {
			BadRequestError(err.Error()).Write(w)
		}
		return core.BillInput{}, false
	}
	return in, true
}

func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		ValidationErrorResponse(verr).Write(w)
	case errors.Is(err, storage.ErrNotFound):
		NotFoundError("bill not found").Write(w)
	default:
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Bill operation failed", err, log.ComponentAPI, op, log.NewFields())
		InternalServerError("internal server error").Write(w)
	}
}

func recurrenceIDOf(b core.Bill) string {
	if !b.RecurrenceID.Valid {
		return ""
	}
	return b.RecurrenceID.UUID.String()
}
