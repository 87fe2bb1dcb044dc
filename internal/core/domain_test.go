package core

import (
	"encoding/json"
	"testing"
)

func TestParseEntryType(t *testing.T) {
	cases := []struct {
		in   string
		want EntryType
		ok   bool
	}{
		{"income", Income, true},
		{" Expense ", Expense, true},
		{"credit", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseEntryType(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: got %q err=%v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.in)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var tx Transaction
	if err := json.Unmarshal([]byte(`{"id":3,"amount":"10.00","date":"2025-03-14","type":"expense"}`), &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tx.Date.Equal(NewDate(2025, 3, 14).Time) {
		t.Fatalf("unexpected date %v", tx.Date)
	}

	out, err := json.Marshal(struct {
		D Date `json:"d"`
		Z Date `json:"z"`
	}{D: NewDate(2025, 1, 2)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"d":"2025-01-02","z":null}` {
		t.Fatalf("unexpected encoding %s", out)
	}

	if _, err := ParseDate("14/03/2025"); err == nil {
		t.Fatal("expected error for non ISO date")
	}
}

func TestPageDecode(t *testing.T) {
	body := `{"count":4,"total_pages":2,"current_page":1,"page_size":3,
		"next":"http://h/api/v1/transactions/?page=2","previous":null,
		"results":[{"id":1,"amount":"5.00","date":"2025-01-01","type":"income"}]}`
	var p Page[Transaction]
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.HasNext() || p.Previous != nil || len(p.Results) != 1 || p.Results[0].Amount.Cents != 500 {
		t.Fatalf("unexpected page: %+v", p)
	}
}

func TestUserFullName(t *testing.T) {
	if got := (User{FirstName: "Ada", LastName: "Lovelace"}).FullName(); got != "Ada Lovelace" {
		t.Fatalf("got %q", got)
	}
	if got := (User{Email: "a@b.c"}).FullName(); got != "a@b.c" {
		t.Fatalf("got %q", got)
	}
}
