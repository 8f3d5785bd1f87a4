package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"khorcha/internal/auth"
	"khorcha/internal/core"
	applog "khorcha/internal/log"
	"khorcha/internal/services"
	"khorcha/internal/storage/memory"
)

var testNow = time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func newTestServer(t *testing.T, opts ...Option) (*Server, *services.ExpenseService) {
	t.Helper()
	repo := memory.New().WithClock(clock)
	svc := services.NewExpenseService(repo, services.WithClock(clock))
	opts = append([]Option{WithClock(clock)}, opts...)
	srv := NewServer(":0", svc, opts...)
	t.Cleanup(srv.rateLimiter.Stop)
	return srv, svc
}

func do(t *testing.T, srv *Server, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if user != "" {
		req.Header.Set(auth.UserHeader, user)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func createExpense(t *testing.T, srv *Server, user, body string) core.Expense {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/expenses", user, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: status %d: %s", body, rec.Code, rec.Body.String())
	}
	var e core.Expense
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	return e
}

type dashboardBody struct {
	RecordCount   int  `json:"recordCount"`
	FilteredCount int  `json:"filteredCount"`
	Filtering     bool `json:"filtering"`
	Totals        struct {
		MonthlyTotal core.Money `json:"monthlyTotal"`
	} `json:"totals"`
}

func TestHealthAndReadiness(t *testing.T) {
	healthy, _ := newTestServer(t)
	if rec := do(t, healthy, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := do(t, healthy, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	down, _ := newTestServer(t, WithReadiness(func(context.Context) error { return errors.New("ping failed") }))
	if rec := do(t, down, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing store = %d", rec.Code)
	}
}

func TestAPIRequiresUser(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/dashboard", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("missing request id on rejected request")
	}
}

func TestAPIWithBearerToken(t *testing.T) {
	tokens := auth.NewTokenService("secret", time.Hour).WithClock(clock)
	srv, _ := newTestServer(t, WithTokens(tokens))

	token, err := tokens.Issue("u1")
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, srv, http.MethodGet, "/api/dashboard", "u1", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("header alone must not authenticate when a secret is set, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with token = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateExpense(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/expenses", "u1",
		`{"name":"Tea","amount":"12.50","category":"food","paymentMethod":"upi","date":"2024-01-05"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var e core.Expense
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if e.ID == "" || e.UserID != "u1" || e.Amount.Cents != 1250 || e.Category != core.Food {
		t.Errorf("unexpected expense %+v", e)
	}
	if got := rec.Header().Get("Location"); got != "/api/expenses/"+e.ID {
		t.Errorf("Location = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestCreateExpenseErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"name":`, http.StatusBadRequest},
		{"unknown field", `{"name":"Tea","amount":1,"x":1}`, http.StatusBadRequest},
		{"short name", `{"name":"T","amount":1}`, http.StatusUnprocessableEntity},
		{"zero amount", `{"name":"Tea","amount":0}`, http.StatusUnprocessableEntity},
		{"future date", `{"name":"Tea","amount":1,"date":"2024-01-21"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/expenses", "u1", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	rec := do(t, srv, http.MethodGet, "/api/dashboard", "u1", "")
	var d dashboardBody
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if d.RecordCount != 0 {
		t.Errorf("rejected commands must not store anything, got %d records", d.RecordCount)
	}
}

func TestUpdateExpense(t *testing.T) {
	srv, _ := newTestServer(t)
	e := createExpense(t, srv, "u1", `{"name":"Tea","amount":20}`)

	rec := do(t, srv, http.MethodPatch, "/api/expenses/"+e.ID, "u1", `{"name":"Chai","amount":"25"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got core.Expense
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID || got.Name != "Chai" || got.Amount.Cents != 2500 || got.Category != e.Category {
		t.Errorf("unexpected update result %+v", got)
	}

	if rec := do(t, srv, http.MethodPatch, "/api/expenses/missing", "u1", `{"name":"Chai"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPatch, "/api/expenses/"+e.ID, "u2", `{"name":"Chai"}`); rec.Code != http.StatusNotFound {
		t.Errorf("other user's expense: status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPatch, "/api/expenses/"+e.ID, "u1", `{"amount":"-3"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid amount: status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPatch, "/api/expenses/"+e.ID, "u1", `{"date":"2030-01-01"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("future date: status = %d", rec.Code)
	}
}

func TestDeleteExpense(t *testing.T) {
	srv, _ := newTestServer(t)
	e := createExpense(t, srv, "u1", `{"name":"Tea","amount":20}`)

	if rec := do(t, srv, http.MethodDelete, "/api/expenses/"+e.ID, "u1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, srv, http.MethodDelete, "/api/expenses/"+e.ID, "u1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d", rec.Code)
	}
}

func TestDashboard(t *testing.T) {
	srv, _ := newTestServer(t)
	createExpense(t, srv, "u1", `{"name":"Lunch","amount":150,"category":"food","date":"2024-01-10"}`)
	createExpense(t, srv, "u1", `{"name":"Bus","amount":25,"category":"transport","paymentMethod":"upi","date":"2024-01-11"}`)
	createExpense(t, srv, "u1", `{"name":"Rent","amount":900,"category":"bills","date":"2023-12-01"}`)
	createExpense(t, srv, "u2", `{"name":"Other user","amount":5}`)

	rec := do(t, srv, http.MethodGet, "/api/dashboard", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var d dashboardBody
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if d.RecordCount != 3 || d.FilteredCount != 3 || d.Filtering {
		t.Errorf("unfiltered dashboard = %+v", d)
	}
	if d.Totals.MonthlyTotal.Cents != 17500 {
		t.Errorf("current month total = %d cents, want 17500", d.Totals.MonthlyTotal.Cents)
	}

	rec = do(t, srv, http.MethodGet, "/api/dashboard?category=food", "u1", "")
	d = dashboardBody{}
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if d.FilteredCount != 1 || !d.Filtering {
		t.Errorf("filtered dashboard = %+v", d)
	}
}

func TestNewExpenseDefaults(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/expenses/new", "u1", "")
	var form expenseForm
	if err := json.NewDecoder(rec.Body).Decode(&form); err != nil {
		t.Fatal(err)
	}
	if form.Date.String() != "2024-01-20" || form.Category != core.Other || form.PaymentMethod != core.Cash {
		t.Errorf("form = %+v", form)
	}
	if len(form.Categories) != len(core.Categories) {
		t.Errorf("categories = %v", form.Categories)
	}
}

func TestExportCSV(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/export.csv", "u1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty export: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nothing to export") {
		t.Errorf("empty export body = %q", rec.Body.String())
	}

	createExpense(t, srv, "u1", `{"name":"Tea \"Stall\"","amount":20,"category":"food","date":"2024-01-05"}`)
	createExpense(t, srv, "u1", `{"name":"Bus","amount":25,"category":"transport","date":"2024-01-06"}`)
	createExpense(t, srv, "u1", `{"name":"Old","amount":5,"category":"food","date":"2023-12-30"}`)

	rec = do(t, srv, http.MethodGet, "/api/export.csv?category=food", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="khorcha-khata-2024-01.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	want := `"date","name","category","paymentMethod","amount"` + "\n" +
		`"2024-01-05","Tea ""Stall""","food","cash","20"`
	if rec.Body.String() != want {
		t.Errorf("body =\n%s\nwant\n%s", rec.Body.String(), want)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	createExpense(t, srv, "u1", `{"name":"Tea","amount":20}`)

	rec := do(t, srv, http.MethodGet, "/metrics", "", "")
	body := rec.Body.String()
	for _, line := range []string{"khorcha_commands_total 1\n", "khorcha_live_streams 0\n", "khorcha_requests_total 2\n"} {
		if !strings.Contains(body, line) {
			t.Errorf("metrics missing %q:\n%s", line, body)
		}
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := do(t, srv, http.MethodGet, "/api/dashboard?file=../../etc/passwd", "u1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

// brokenService fails every read and every create like an unreachable store.
type brokenService struct {
	*services.ExpenseService
}

var errStoreDown = errors.New("store down")

func (brokenService) Snapshot(context.Context, string) (core.Snapshot, error) {
	return core.Snapshot{}, errStoreDown
}

func (brokenService) Create(context.Context, string, core.Expense) (core.Expense, error) {
	return core.Expense{}, fmt.Errorf("%w: create: %w", services.ErrCommandFailed, errStoreDown)
}

func TestHandlerErrorsCarryRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{
		Component: applog.ComponentHTTP,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	_, svc := newTestServer(t)
	srv := NewServer(":0", brokenService{svc}, WithClock(clock), WithLogger(logger))
	t.Cleanup(srv.rateLimiter.Stop)

	send := func(method, target, body, requestID string) int {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, r)
		req.Header.Set(auth.UserHeader, "u1")
		req.Header.Set("X-Request-ID", requestID)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodGet, "/api/dashboard", "", "req-dash"); code != http.StatusInternalServerError {
		t.Fatalf("dashboard status = %d", code)
	}
	if code := send(http.MethodPost, "/api/expenses", `{"name":"Tea","amount":20}`, "req-create"); code != http.StatusBadGateway {
		t.Fatalf("create status = %d", code)
	}

	lines := strings.Split(buf.String(), "\n")
	for msg, id := range map[string]string{
		"Failed to load snapshot": "req-dash",
		"Expense command failed":  "req-create",
	} {
		found := false
		for _, line := range lines {
			if strings.Contains(line, msg) {
				found = true
				if !strings.Contains(line, "request_id="+id) {
					t.Errorf("%q logged without request_id=%s: %s", msg, id, line)
				}
				if n := strings.Count(line, "component="); n != 1 {
					t.Errorf("%q logged component %d times: %s", msg, n, line)
				}
			}
		}
		if !found {
			t.Errorf("no %q line in:\n%s", msg, buf.String())
		}
	}
}

// readEvent returns the data line of the next "dashboard" event.
func readEvent(t *testing.T, r *bufio.Reader) dashboardBody {
	t.Helper()
	var event string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "dashboard":
			var d dashboardBody
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &d); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return d
		}
	}
}

func TestStreamPushesDashboardOnChange(t *testing.T) {
	srv, _ := newTestServer(t)
	createExpense(t, srv, "u1", `{"name":"Tea","amount":20}`)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(auth.UserHeader, "u1")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}
	r := bufio.NewReader(resp.Body)
	if d := readEvent(t, r); d.RecordCount != 1 {
		t.Fatalf("first event has %d records, want 1", d.RecordCount)
	}

	createExpense(t, srv, "u1", `{"name":"Bus","amount":25}`)
	if d := readEvent(t, r); d.RecordCount != 2 {
		t.Fatalf("event after create has %d records, want 2", d.RecordCount)
	}
}

// readSessionID returns the stream id announced by the "session" event.
func readSessionID(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var event string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "session":
			var body struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &body); err != nil {
				t.Fatalf("decode session: %v", err)
			}
			return body.ID
		}
	}
}

func TestStreamViewChangesInPlace(t *testing.T) {
	srv, _ := newTestServer(t)
	createExpense(t, srv, "u1", `{"name":"Lunch","amount":150,"category":"food"}`)
	createExpense(t, srv, "u1", `{"name":"Tea","amount":20}`)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(auth.UserHeader, "u1")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	id := readSessionID(t, r)
	if id == "" {
		t.Fatal("empty stream id")
	}
	if d := readEvent(t, r); d.FilteredCount != 2 || d.Filtering {
		t.Fatalf("first event = %+v", d)
	}

	if rec := do(t, srv, http.MethodPost, "/api/stream/"+id+"/params?category=food", "u1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("params status = %d: %s", rec.Code, rec.Body.String())
	}
	if d := readEvent(t, r); d.FilteredCount != 1 || !d.Filtering {
		t.Fatalf("event after params = %+v", d)
	}

	if rec := do(t, srv, http.MethodPost, "/api/stream/"+id+"/clear", "u1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if d := readEvent(t, r); d.FilteredCount != 2 || d.Filtering {
		t.Fatalf("event after clear = %+v", d)
	}

	tests := []struct {
		name   string
		target string
		user   string
		want   int
	}{
		{"page", "/api/stream/" + id + "/page?page=1", "u1", http.StatusNoContent},
		{"bad page", "/api/stream/" + id + "/page?page=zero", "u1", http.StatusBadRequest},
		{"bad month", "/api/stream/" + id + "/page?page=1&month=janvier", "u1", http.StatusBadRequest},
		{"other user", "/api/stream/" + id + "/params", "u2", http.StatusNotFound},
		{"unknown stream", "/api/stream/nope/clear", "u1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, srv, http.MethodPost, tt.target, tt.user, ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
