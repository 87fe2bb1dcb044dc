package services

import (
	"context"
	"fmt"
	"strconv"

	"efinance/internal/api"
	"efinance/internal/core"
)

// Attachment is a proof file sent as the "preuve" multipart part.
type Attachment struct {
	Filename string
	Content  []byte
}

// TransactionInput creates a transaction.
type TransactionInput struct {
	Amount      core.Amount
	Date        core.Date
	Description string
	Type        core.EntryType
	Category    int64
	Group       *int64
	Proof       *Attachment
}

// TransactionPatch changes only the non-nil fields.
type TransactionPatch struct {
	Amount      *core.Amount
	Date        *core.Date
	Description *string
	Type        *core.EntryType
	Category    *int64
	Proof       *Attachment
}

type TransactionService struct {
	client Requester
}

func NewTransactionService(client Requester) *TransactionService {
	return &TransactionService{client: client}
}

// List returns one page; the backend is always asked for an explicit page.
func (s *TransactionService) List(ctx context.Context, page int) (core.Page[core.Transaction], error) {
	var p core.Page[core.Transaction]
	endpoint := fmt.Sprintf("/transactions/?page=%d", max(page, 1))
	if err := s.client.Get(ctx, endpoint, &p); err != nil {
		return core.Page[core.Transaction]{}, fmt.Errorf("list transactions: %w", err)
	}
	return p, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	var tx core.Transaction
	if err := s.client.Get(ctx, fmt.Sprintf("/transactions/%d/", id), &tx); err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return tx, nil
}

// Create posts JSON, or multipart when a proof is attached.
func (s *TransactionService) Create(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	if !in.Type.IsValid() {
		return core.Transaction{}, core.ErrInvalidEntryType
	}
	f := fields{}
	f.add("amount", in.Amount.String(), in.Amount)
	f.add("date", in.Date.String(), in.Date)
	f.add("description", in.Description, in.Description)
	f.add("type", string(in.Type), in.Type)
	f.add("category", strconv.FormatInt(in.Category, 10), in.Category)
	if in.Group != nil {
		f.add("group", strconv.FormatInt(*in.Group, 10), *in.Group)
	}

	var tx core.Transaction
	if err := s.client.Post(ctx, "/transactions/", f.body(in.Proof), &tx); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}

// Update patches the set fields, as multipart when a new proof is attached.
func (s *TransactionService) Update(ctx context.Context, id int64, in TransactionPatch) (core.Transaction, error) {
	f := fields{}
	if in.Amount != nil {
		f.add("amount", in.Amount.String(), *in.Amount)
	}
	if in.Date != nil {
		f.add("date", in.Date.String(), *in.Date)
	}
	if in.Description != nil {
		f.add("description", *in.Description, *in.Description)
	}
	if in.Type != nil {
		if !in.Type.IsValid() {
			return core.Transaction{}, core.ErrInvalidEntryType
		}
		f.add("type", string(*in.Type), *in.Type)
	}
	if in.Category != nil {
		f.add("category", strconv.FormatInt(*in.Category, 10), *in.Category)
	}

	var tx core.Transaction
	if err := s.client.Patch(ctx, fmt.Sprintf("/transactions/%d/", id), f.body(in.Proof), &tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}
	return tx, nil
}

func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	if err := s.client.Delete(ctx, fmt.Sprintf("/transactions/%d/", id), nil); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return nil
}

func (s *TransactionService) Stats(ctx context.Context) (core.TransactionStats, error) {
	var st core.TransactionStats
	if err := s.client.Get(ctx, "/transactions/stats/", &st); err != nil {
		return core.TransactionStats{}, fmt.Errorf("transaction stats: %w", err)
	}
	return st, nil
}

func (s *TransactionService) ByCategory(ctx context.Context) ([]core.CategoryBreakdown, error) {
	var rows []core.CategoryBreakdown
	if err := s.client.Get(ctx, "/transactions/by_category/", &rows); err != nil {
		return nil, fmt.Errorf("transactions by category: %w", err)
	}
	return rows, nil
}

// fields keeps both renderings of each value: text for multipart parts and
// the typed value for JSON.
type fields struct {
	names []string
	text  map[string]string
	typed map[string]any
}

func (f *fields) add(name, text string, typed any) {
	if f.text == nil {
		f.text = make(map[string]string)
		f.typed = make(map[string]any)
	}
	f.names = append(f.names, name)
	f.text[name] = text
	f.typed[name] = typed
}

func (f *fields) body(proof *Attachment) any {
	if proof == nil {
		if f.typed == nil {
			return map[string]any{}
		}
		return f.typed
	}
	form := api.NewForm()
	for _, name := range f.names {
		form.Field(name, f.text[name])
	}
	return form.File("preuve", proof.Filename, proof.Content)
}
