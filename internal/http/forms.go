package http

import (
	"errors"
	"net/http"
	"strconv"

	"ubillity/internal/core"
	"ubillity/internal/log"
	"ubillity/internal/services"
	"ubillity/internal/storage"
)

type listPage struct {
	Title   string
	Bills   []core.Bill
	Summary core.Summary
	Notice  string
}

type detailPage struct {
	Title       string
	Bill        core.Bill
	SeriesCount int
}

type formPage struct {
	Title       string
	Action      string
	SubmitLabel string
	Editing     bool
	Bill        core.Bill
	Values      map[string]string
	Errors      map[string]string
	Types       []core.Choice
	Categories  []core.Choice
	Recurrences []core.Choice
}

type deletePage struct {
	Title       string
	Bill        core.Bill
	SeriesCount int
}

type notFoundPage struct {
	Title string
}

func billPath(id int64) string {
	return "/bills/" + strconv.FormatInt(id, 10)
}

func newFormPage(values map[string]string) formPage {
	return formPage{
		Title:       "New bill",
		Action:      "/bills/",
		SubmitLabel: "Create",
		Values:      values,
		Errors:      map[string]string{},
		Types:       core.BillTypeChoices(),
		Categories:  core.CategoryChoices(),
		Recurrences: core.RecurrenceChoices(),
	}
}

func editFormPage(b core.Bill, values map[string]string) formPage {
	page := newFormPage(values)
	page.Title = "Edit " + b.Name
	page.Action = billPath(b.ID)
	page.SubmitLabel = "Save"
	page.Editing = true
	page.Bill = b
	return page
}

func billFormValues(b core.Bill) map[string]string {
	values := map[string]string{
		core.FieldName:        b.Name,
		core.FieldDescription: b.Description,
		core.FieldAmount:      b.Amount.String(),
		core.FieldType:        string(b.Type),
		core.FieldCategory:    string(b.Category),
		core.FieldDueDate:     b.DueDate.String(),
		core.FieldRecurrence:  string(b.Recurrence),
	}
	if b.Reconciled {
		values[core.FieldReconciled] = "true"
	}
	return values
}

func submittedFormValues(p *RequestBodyParser) map[string]string {
	values := make(map[string]string)
	for _, f := range []string{
		core.FieldName, core.FieldDescription, core.FieldAmount, core.FieldType,
		core.FieldCategory, core.FieldDueDate, core.FieldReconciled, core.FieldRecurrence,
	} {
		if v := p.Get(f); v != "" {
			values[f] = v
		}
	}
	return values
}

func noticeFrom(r *http.Request) string {
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("created")); err == nil && n > 0 {
		return "Created " + pluralBills(n) + "."
	}
	if n, err := strconv.Atoi(q.Get("deleted")); err == nil && n > 0 {
		return "Deleted " + pluralBills(n) + "."
	}
	return ""
}

func pluralBills(n int) string {
	if n == 1 {
		return "1 bill"
	}
	return strconv.Itoa(n) + " bills"
}

func (s *Server) handleListPage(w http.ResponseWriter, r *http.Request) {
	bills, err := s.bills.ListBills(r.Context())
	if err != nil {
		s.formFailure(w, r, err, log.OpList)
		return
	}
	s.render(w, r, http.StatusOK, "list.html", listPage{
		Title:   "Bills",
		Bills:   bills,
		Summary: core.Summarize(bills),
		Notice:  noticeFrom(r),
	})
}

func (s *Server) handleNewPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "form.html", newFormPage(map[string]string{
		core.FieldDueDate:    core.Today().String(),
		core.FieldRecurrence: string(core.RecurrenceNone),
	}))
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		http.Error(w, "Malformed form submission", http.StatusBadRequest)
		return
	}

	in, err := p.BillInput()
	var created services.CreateResult
	if err == nil {
		created, err = s.bills.CreateBill(r.Context(), in)
	}
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			page := newFormPage(submittedFormValues(p))
			page.Errors = verr.Fields
			s.render(w, r, http.StatusUnprocessableEntity, "form.html", page)
			return
		}
		s.formFailure(w, r, err, log.OpCreate)
		return
	}

	http.Redirect(w, r, "/bills/?created="+strconv.Itoa(created.Count), http.StatusSeeOther)
}

func (s *Server) handleDetailPage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBill(w, r)
	if !ok {
		return
	}
	series, err := s.bills.Series(r.Context(), b)
	if err != nil {
		s.formFailure(w, r, err, log.OpRead)
		return
	}
	s.render(w, r, http.StatusOK, "detail.html", detailPage{
		Title:       b.Name,
		Bill:        b,
		SeriesCount: len(series),
	})
}

func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBill(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "form.html", editFormPage(b, billFormValues(b)))
}

// handleUpdateForm replaces every editable field; an unchecked reconciled box means false.
func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.renderNotFound(w, r)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		http.Error(w, "Malformed form submission", http.StatusBadRequest)
		return
	}

	in, err := p.BillInput()
	if err == nil {
		_, err = s.bills.UpdateBill(r.Context(), id, in, false)
	}
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			current, gerr := s.bills.GetBill(r.Context(), id)
			if gerr != nil {
				s.formFailure(w, r, gerr, log.OpRead)
				return
			}
			page := editFormPage(current, submittedFormValues(p))
			page.Errors = verr.Fields
			s.render(w, r, http.StatusUnprocessableEntity, "form.html", page)
			return
		}
		s.formFailure(w, r, err, log.OpUpdate)
		return
	}

	http.Redirect(w, r, billPath(id), http.StatusSeeOther)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBill(w, r)
	if !ok {
		return
	}
	series, err := s.bills.Series(r.Context(), b)
	if err != nil {
		s.formFailure(w, r, err, log.OpRead)
		return
	}
	s.render(w, r, http.StatusOK, "confirm_delete.html", deletePage{
		Title:       "Delete " + b.Name,
		Bill:        b,
		SeriesCount: len(series),
	})
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.renderNotFound(w, r)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		http.Error(w, "Malformed form submission", http.StatusBadRequest)
		return
	}
	deleteSeries, err := parseDeleteSeries(p.Get("delete_series"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n, err := s.bills.DeleteBill(r.Context(), id, deleteSeries)
	if err != nil {
		s.formFailure(w, r, err, log.OpDelete)
		return
	}
	http.Redirect(w, r, "/bills/?deleted="+strconv.FormatInt(n, 10), http.StatusSeeOther)
}

// loadBill writes the 404 page or an error response and returns false when the bill cannot be shown.
func (s *Server) loadBill(w http.ResponseWriter, r *http.Request) (core.Bill, bool) {
	id, err := parseID(r)
	if err != nil {
		s.renderNotFound(w, r)
		return core.Bill{}, false
	}
	b, err := s.bills.GetBill(r.Context(), id)
	if err != nil {
		s.formFailure(w, r, err, log.OpRead)
		return core.Bill{}, false
	}
	return b, true
}

func (s *Server) formFailure(w http.ResponseWriter, r *http.Request, err error, op string) {
	if errors.Is(err, storage.ErrNotFound) {
		s.renderNotFound(w, r)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogError(r.Context(), "Bill page failed", err, log.ComponentForms, op, log.NewFields())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "not_found.html", notFoundPage{Title: "Not found"})
}
