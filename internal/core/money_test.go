package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{".5", 50, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		2000:   "20",
		1250:   "12.5",
		1234:   "12.34",
		5:      "0.05",
		100000: "1000",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("%d: expected %q, got %q", cents, want, got)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(Money{Cents: 1250})
	if err != nil || string(b) != "12.5" {
		t.Fatalf("marshal: %s %v", b, err)
	}
	var m Money
	if err := json.Unmarshal([]byte("1500.50"), &m); err != nil || m.Cents != 150050 {
		t.Fatalf("unmarshal number: %+v %v", m, err)
	}
	if err := json.Unmarshal([]byte(`"20"`), &m); err != nil || m.Cents != 2000 {
		t.Fatalf("unmarshal string: %+v %v", m, err)
	}
	if err := json.Unmarshal([]byte(`"twenty"`), &m); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMoneyFromDecimal(t *testing.T) {
	if got := MoneyFromDecimal(decimal.RequireFromString("12.345")); got.Cents != 1235 {
		t.Fatalf("expected 1235, got %d", got.Cents)
	}
	if got := (Money{Cents: 10}).Add(Money{Cents: 20}); got.Cents != 30 {
		t.Fatalf("expected 30, got %d", got.Cents)
	}
}
