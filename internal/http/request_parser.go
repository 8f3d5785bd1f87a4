// This file parses query parameters and JSON payloads.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"khorcha/internal/core"
	"khorcha/internal/engine"
)

const maxBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := core.ParseMoney(fl.Field().String())
		return err == nil
	})
	return v
}

// amountText accepts an amount sent either as a JSON number or a string.
type amountText string

func (a *amountText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a number or a string")
	}
	*a = amountText(n.String())
	return nil
}

// createExpenseRequest is the body of POST /api/expenses. Category, payment
// method and date default to the new-expense form values.
type createExpenseRequest struct {
	Name          string     `json:"name" validate:"required,notblank,min=2,max=200"`
	Amount        amountText `json:"amount" validate:"required,amount"`
	Category      string     `json:"category" validate:"omitempty,oneof=food transport shopping bills other"`
	PaymentMethod string     `json:"paymentMethod" validate:"omitempty,oneof=cash upi"`
	Date          string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// patchExpenseRequest is the body of PATCH /api/expenses/{id}. Absent
// fields are left untouched.
type patchExpenseRequest struct {
	Name          *string     `json:"name" validate:"omitempty,notblank,min=2,max=200"`
	Amount        *amountText `json:"amount" validate:"omitempty,amount"`
	Category      *string     `json:"category" validate:"omitempty,oneof=food transport shopping bills other"`
	PaymentMethod *string     `json:"paymentMethod" validate:"omitempty,oneof=cash upi"`
	Date          *string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// errBadJSON marks bodies that could not be decoded at all.
var errBadJSON = errors.New("malformed JSON body")

// decodeJSON reads a bounded JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadJSON, err)
	}
	return validate.Struct(v)
}

func (req createExpenseRequest) toExpense(now time.Time) (core.Expense, error) {
	e := core.NewExpenseDefaults(now)
	e.Name = sanitizeInput(req.Name)

	amount, err := core.ParseMoney(string(req.Amount))
	if err != nil {
		return core.Expense{}, err
	}
	e.Amount = amount

	if req.Category != "" {
		if e.Category, err = core.ParseCategory(req.Category); err != nil {
			return core.Expense{}, err
		}
	}
	if req.PaymentMethod != "" {
		if e.PaymentMethod, err = core.ParsePaymentMethod(req.PaymentMethod); err != nil {
			return core.Expense{}, err
		}
	}
	if req.Date != "" {
		if e.Date, err = core.ParseDate(req.Date); err != nil {
			return core.Expense{}, err
		}
	}
	return e, nil
}

func (req patchExpenseRequest) toPatch() (core.Patch, error) {
	var p core.Patch
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		p.Name = &name
	}
	if req.Amount != nil {
		m, err := core.ParseMoney(string(*req.Amount))
		if err != nil {
			return core.Patch{}, err
		}
		p.Amount = &m
	}
	if req.Category != nil {
		c, err := core.ParseCategory(*req.Category)
		if err != nil {
			return core.Patch{}, err
		}
		p.Category = &c
	}
	if req.PaymentMethod != nil {
		pm, err := core.ParsePaymentMethod(*req.PaymentMethod)
		if err != nil {
			return core.Patch{}, err
		}
		p.PaymentMethod = &pm
	}
	if req.Date != nil {
		d, err := core.ParseDate(*req.Date)
		if err != nil {
			return core.Patch{}, err
		}
		p.Date = &d
	}
	return p, nil
}

// ParseParams reads view parameters from a query string:
// q, category, page and any number of month_page=YYYY-MM:N.
// Malformed values are ignored.
func ParseParams(q url.Values) engine.Params {
	p := engine.Params{
		Search:     strings.TrimSpace(q.Get("q")),
		Category:   core.Category(strings.ToLower(strings.TrimSpace(q.Get("category")))),
		MonthPages: map[string]int{},
	}
	if v, err := strconv.Atoi(strings.TrimSpace(q.Get("page"))); err == nil {
		p.Page = v
	}
	for _, mp := range q["month_page"] {
		key, page, ok := parseMonthPage(mp)
		if ok {
			p.MonthPages[key] = page
		}
	}
	return p.Normalize()
}

func parseMonthPage(s string) (string, int, bool) {
	key, num, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", 0, false
	}
	if _, err := time.Parse("2006-01", key); err != nil {
		return "", 0, false
	}
	page, err := strconv.Atoi(num)
	if err != nil {
		return "", 0, false
	}
	return key, page, true
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, s)
}
