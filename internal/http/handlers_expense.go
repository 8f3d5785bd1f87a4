package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"khorcha/internal/core"
	applog "khorcha/internal/log"
)

// expenseForm is the starting state of a new expense form.
type expenseForm struct {
	Name           string               `json:"name"`
	Amount         string               `json:"amount"`
	Category       core.Category        `json:"category"`
	PaymentMethod  core.PaymentMethod   `json:"paymentMethod"`
	Date           core.Date            `json:"date"`
	Categories     []core.Category      `json:"categories"`
	PaymentMethods []core.PaymentMethod `json:"paymentMethods"`
}

func newExpenseDefaults(now time.Time) expenseForm {
	e := core.NewExpenseDefaults(now)
	return expenseForm{
		Category:       e.Category,
		PaymentMethod:  e.PaymentMethod,
		Date:           e.Date,
		Categories:     core.Categories,
		PaymentMethods: core.PaymentMethods,
	}
}

// handleNewExpense returns the prefilled values of an empty expense form.
func (s *Server) handleNewExpense(w http.ResponseWriter, r *http.Request) {
	d := newExpenseDefaults(s.now())
	NewJSONResponse().Body(d).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeRequestError(w, err)
		return
	}
	e, err := req.toExpense(s.now())
	if err != nil {
		ErrorFrom(err).Write(w)
		return
	}
	created, err := s.service.Create(r.Context(), s.userID(r), e)
	if err != nil {
		s.writeCommandError(w, r, "create", "", err)
		return
	}
	s.countCommand()
	NewJSONResponse().Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+created.ID).
		Body(created).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		BadRequestError("missing expense id").Write(w)
		return
	}
	var req patchExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeRequestError(w, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		ErrorFrom(err).Write(w)
		return
	}
	updated, err := s.service.Update(r.Context(), s.userID(r), id, patch)
	if err != nil {
		s.writeCommandError(w, r, "update", id, err)
		return
	}
	s.countCommand()
	NewJSONResponse().Body(updated).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		BadRequestError("missing expense id").Write(w)
		return
	}
	if err := s.service.Delete(r.Context(), s.userID(r), id); err != nil {
		s.writeCommandError(w, r, "delete", id, err)
		return
	}
	s.countCommand()
	w.WriteHeader(http.StatusNoContent)
}

// writeRequestError answers a body that failed to decode or validate.
func (s *Server) writeRequestError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadJSON) {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ErrorFrom(err).Write(w)
}

// writeCommandError logs store failures once and answers with the mapped status.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	if StatusFor(err) >= http.StatusInternalServerError {
		fields := applog.NewFields().WithUser(s.userID(r))
		if id != "" {
			fields[applog.FieldExpenseID] = id
		}
		applog.NewStructuredLogger(s.log(r)).LogError(r.Context(), "Expense command failed", err, applog.ComponentHTTP, op, fields)
	}
	ErrorFrom(err).Write(w)
}
