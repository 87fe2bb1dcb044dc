package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	Income  EntryType = "income"
	Expense EntryType = "expense"
)

const dateLayout = "2006-01-02"

type (
	// EntryType classifies both categories and transactions.
	EntryType string

	// Date is a calendar day serialized as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	User struct {
		ID         int64      `json:"id"`
		FirstName  string     `json:"first_name"`
		LastName   string     `json:"last_name"`
		Email      string     `json:"email"`
		Solde      Amount     `json:"solde"`
		DateJoined *time.Time `json:"date_joined,omitempty"`
		LastLogin  *time.Time `json:"last_login,omitempty"`
		IsActive   bool       `json:"is_active"`
	}

	Category struct {
		ID               int64      `json:"id"`
		Name             string     `json:"name"`
		Type             EntryType  `json:"type"`
		User             int64      `json:"user,omitempty"`
		UserName         string     `json:"user_name,omitempty"`
		Group            *int64     `json:"group,omitempty"`
		GroupName        string     `json:"group_name,omitempty"`
		TransactionCount int        `json:"transaction_count,omitempty"`
		TotalAmount      Amount     `json:"total_amount"`
		CreatedAt        *time.Time `json:"created_at,omitempty"`
		UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	}

	Transaction struct {
		ID                 int64      `json:"id"`
		Amount             Amount     `json:"amount"`
		Date               Date       `json:"date"`
		Description        string     `json:"description"`
		Type               EntryType  `json:"type"`
		Category           int64      `json:"category,omitempty"`
		CategoryName       string     `json:"category_name,omitempty"`
		Proof              string     `json:"preuve,omitempty"`
		User               int64      `json:"user,omitempty"`
		UserName           string     `json:"user_name,omitempty"`
		Group              *int64     `json:"group,omitempty"`
		GroupName          string     `json:"group_name,omitempty"`
		IsGroupTransaction bool       `json:"is_group_transaction"`
		CreatedAt          *time.Time `json:"created_at,omitempty"`
		UpdatedAt          *time.Time `json:"updated_at,omitempty"`
	}

	// Page is the paginated list envelope returned by list endpoints.
	Page[T any] struct {
		Count       int     `json:"count"`
		TotalPages  int     `json:"total_pages"`
		CurrentPage int     `json:"current_page"`
		PageSize    int     `json:"page_size"`
		Next        *string `json:"next"`
		Previous    *string `json:"previous"`
		Results     []T     `json:"results"`
	}

	// Message is the {"message": ...} acknowledgement most write endpoints return.
	Message struct {
		Message string `json:"message"`
		Success bool   `json:"success,omitempty"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidEntryType = errors.New("invalid type: must be income or expense")
	ErrEmptyName        = errors.New("empty name")
)

// IsValid reports whether t is one of the types the backend accepts.
func (t EntryType) IsValid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

// ParseEntryType normalizes user input into an EntryType.
func ParseEntryType(s string) (EntryType, error) {
	t := EntryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidEntryType
	}
	return t, nil
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String returns the YYYY-MM-DD form, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD, a full RFC 3339 timestamp or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	if parsed, err := ParseDate(s); err == nil {
		*d = parsed
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return ErrInvalidDate
	}
	*d = Date{Time: t}
	return nil
}

// FullName joins first and last name, falling back to the email.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// HasNext reports whether another page follows this one.
func (p Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}
