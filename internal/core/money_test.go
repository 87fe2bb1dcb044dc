package core

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
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
		{"-1", -100, true},
		{"-0.5", -50, true},
		{"+3", 300, true},
		{".5", 50, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"-", 0, false},
		{"", 0, false},
		{"١٢", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestAmountJSON(t *testing.T) {
	var v struct {
		S Amount `json:"s"`
		N Amount `json:"n"`
		Z Amount `json:"z"`
		E Amount `json:"e"`
	}
	if err := json.Unmarshal([]byte(`{"s":"150.50","n":-12.5,"z":null,"e":1.5e3}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.S.Cents != 15050 || v.N.Cents != -1250 || v.Z.Cents != 0 || v.E.Cents != 150000 {
		t.Fatalf("unexpected amounts: %+v", v)
	}

	out, err := json.Marshal(Amount{Cents: -5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"-0.05"` {
		t.Fatalf("unexpected encoding %s", out)
	}

	var bad Amount
	if err := json.Unmarshal([]byte(`"12abc"`), &bad); err == nil {
		t.Fatal("expected error for malformed amount")
	}
}

func TestFormatXOF(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0 XOF"},
		{100, "1 XOF"},
		{123450, "1\u202f234,5 XOF"},
		{123456, "1\u202f234,56 XOF"},
		{100000000, "1\u202f000\u202f000 XOF"},
		{-150, "-1,5 XOF"},
		{5, "0,05 XOF"},
	}
	for _, tc := range cases {
		if got := FormatXOF(Amount{Cents: tc.cents}); got != tc.want {
			t.Errorf("FormatXOF(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}
