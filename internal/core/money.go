// Package core provides the E-Finance domain types shared by the API client,
// the services and the CLI.
//
// This file contains the decimal amount type used for balances, transaction
// amounts and statistics. The backend serializes decimals either as JSON
// strings ("150.50") or as plain numbers; both are held as integer cents.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a signed decimal value with two fractional digits, in cents.
type Amount struct {
	Cents int64
}

// ParseAmount converts a decimal string to an Amount with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Digits beyond the second decimal are rounded on the
// third one.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234
//	ParseAmount("12,345") -> 1235
//	ParseAmount("-0.5")   -> -50
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Amount{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return Amount{}, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return Amount{}, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64-1 {
		return Amount{}, ErrInvalidAmount
	}

	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if negative {
		cents = -cents
	}
	return Amount{Cents: cents}, nil
}

// MustAmount is ParseAmount for literals known to be valid.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic("core: invalid amount literal " + strconv.Quote(s))
	}
	return a
}

// String renders the amount as a plain decimal with two digits ("1234.50").
func (a Amount) String() string {
	cents := a.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + frac
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.Cents == 0
}

// Float returns the value for display purposes. Use cents for arithmetic.
func (a Amount) Float() float64 {
	return float64(a.Cents) / 100.0
}

// MarshalJSON encodes the amount as a decimal string, the format the backend
// expects for DecimalField inputs.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string, a JSON number or null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	// Numbers may come in exponent form from float aggregates.
	if strings.ContainsAny(raw, "eE") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ErrInvalidAmount
		}
		raw = strconv.FormatFloat(f, 'f', 3, 64)
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// FormatAmount formats an amount with French digit grouping and up to two
// decimals ("1 234,5"), the way the dashboard displays figures.
func FormatAmount(a Amount) string {
	cents := a.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	digits := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	b.WriteString(sign)
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteRune('\u202f')
		}
		b.WriteRune(r)
	}

	if frac := cents % 100; frac != 0 {
		fs := strconv.FormatInt(frac, 10)
		if len(fs) == 1 {
			fs = "0" + fs
		}
		b.WriteByte(',')
		b.WriteString(strings.TrimRight(fs, "0"))
	}
	return b.String()
}

// FormatXOF formats an amount in CFA francs ("1 234,5 XOF").
func FormatXOF(a Amount) string {
	return FormatAmount(a) + " XOF"
}
