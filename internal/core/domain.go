package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Food      Category = "food"
	Transport Category = "transport"
	Shopping  Category = "shopping"
	Bills     Category = "bills"
	Other     Category = "other"

	Cash PaymentMethod = "cash"
	UPI  PaymentMethod = "upi"
)

type (
	Category string

	PaymentMethod string

	// Date is a calendar date. The time part is always midnight UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Expense struct {
		ID            string        `json:"id"` // Assigned by the store, immutable
		UserID        string        `json:"userId"`
		Name          string        `json:"name"`
		Amount        Money         `json:"amount"`
		Category      Category      `json:"category"`
		PaymentMethod PaymentMethod `json:"paymentMethod"`
		Date          Date          `json:"date"`
		CreatedAt     time.Time     `json:"createdAt"`
		UpdatedAt     time.Time     `json:"updatedAt"`
	}

	// Patch is a partial update. Nil fields are left untouched.
	Patch struct {
		Name          *string
		Amount        *Money
		Category      *Category
		PaymentMethod *PaymentMethod
		Date          *Date
	}

	// Snapshot is the full record set of one user at a point in time.
	// Seq grows with every snapshot published for the same user.
	Snapshot struct {
		UserID  string
		Seq     uint64
		Records []Expense
	}
)

// Categories lists every category in display order. The order is also the
// tie-breaker wherever categories are ranked.
var Categories = []Category{Food, Transport, Shopping, Bills, Other}

// PaymentMethods lists every payment method in display order.
var PaymentMethods = []PaymentMethod{Cash, UPI}

var (
	ErrInvalidDay           = errors.New("invalid day")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidDate          = errors.New("invalid date")
	ErrFutureDate           = errors.New("date cannot be in the future")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyName            = errors.New("empty name")
	ErrNameTooShort         = errors.New("name must be at least 2 characters")
	ErrNameTooLong          = errors.New("name too long (max 200 characters)")
	ErrInvalidCategory      = errors.New("invalid category")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

const (
	minNameLength = 2
	maxNameLength = 200
)

var minDate = NewDate(1900, 1, 1)

func (c Category) IsValid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory accepts a category name in any letter case.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

func (p PaymentMethod) IsValid() bool {
	return p == Cash || p == UPI
}

func (p PaymentMethod) String() string {
	return string(p)
}

// ParsePaymentMethod accepts a payment method name in any letter case.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	p := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
	}
	return p, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Time.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	if d.Before(minDate.Time) {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// MonthKey formats the date's month as YYYY-MM.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// MonthStart returns the first day of the date's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Time.Year(), int(d.Time.Month()), 1)
}

// SameMonth reports whether d falls in the calendar month of t.
func (d Date) SameMonth(t time.Time) bool {
	y, m, _ := t.Date()
	return d.Time.Year() == y && d.Time.Month() == m
}

// SameDay reports whether d is the calendar date of t.
func (d Date) SameDay(t time.Time) bool {
	return d.Equal(DateOf(t).Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	name := strings.TrimSpace(e.Name)
	if len(name) == 0 {
		return ErrEmptyName
	}
	if len([]rune(name)) < minNameLength {
		return ErrNameTooShort
	}
	if len(e.Name) > maxNameLength {
		return ErrNameTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Category.IsValid() {
		return ErrInvalidCategory
	}
	if !e.PaymentMethod.IsValid() {
		return ErrInvalidPaymentMethod
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	return nil
}

// ValidateAt validates e and rejects dates after today.
func (e Expense) ValidateAt(now time.Time) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Date.After(DateOf(now).Time) {
		return ErrFutureDate
	}
	return nil
}

// Apply returns a copy of e with the patch applied. The result is not validated.
func (p Patch) Apply(e Expense) Expense {
	if p.Name != nil {
		e.Name = strings.TrimSpace(*p.Name)
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.PaymentMethod != nil {
		e.PaymentMethod = *p.PaymentMethod
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	return e
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Amount == nil && p.Category == nil && p.PaymentMethod == nil && p.Date == nil
}

// NewExpenseDefaults returns the prefilled values of a new expense form.
func NewExpenseDefaults(now time.Time) Expense {
	return Expense{
		Category:      Other,
		PaymentMethod: Cash,
		Date:          DateOf(now),
	}
}
