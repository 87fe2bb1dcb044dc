package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

func withUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func userFrom(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads an optional JSON body. It writes a 400 and reports false on
// malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error - " + err.Error()})
	return false
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, path string, items []any, size int) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Page non valide."})
			return
		}
		page = n
	}
	totalPages := 1
	if len(items) > 0 {
		totalPages = int(math.Ceil(float64(len(items)) / float64(size)))
	}
	if page > totalPages {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Page non valide."})
		return
	}

	link := func(n int) *string {
		u := "http://" + r.Host + BasePath + path
		if n > 1 {
			u += "?page=" + strconv.Itoa(n)
		}
		return &u
	}
	var next, prev *string
	if page < totalPages {
		next = link(page + 1)
	}
	if page > 1 {
		prev = link(page - 1)
	}

	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))
	results := items[start:end]
	if results == nil {
		results = []any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(items),
		"total_pages":  totalPages,
		"current_page": page,
		"page_size":    size,
		"next":         next,
		"previous":     prev,
		"results":      results,
	})
}

func (s *Server) userCategoriesLocked(userID int64) []*category {
	var out []*category
	for _, c := range s.categories {
		if c.User == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Server) userTransactionsLocked(userID int64) []*transaction {
	var out []*transaction
	for _, tx := range s.transactions {
		if tx.User == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			return out[i].ID > out[j].ID
		}
		return out[i].Date > out[j].Date
	})
	return out
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Pas trouvé."})
}

func (s *Server) ownedCategoryLocked(w http.ResponseWriter, r *http.Request) (*category, bool) {
	id, ok := pathID(r)
	c := s.categories[id]
	if !ok || c == nil || c.User != userFrom(r.Context()).ID {
		notFound(w)
		return nil, false
	}
	return c, true
}

func (s *Server) ownedTransactionLocked(w http.ResponseWriter, r *http.Request) (*transaction, bool) {
	id, ok := pathID(r)
	tx := s.transactions[id]
	if !ok || tx == nil || tx.User != userFrom(r.Context()).ID {
		notFound(w)
		return nil, false
	}
	return tx, true
}

type transactionInput struct {
	fields map[string]string
	proof  string
}

// decodeTransaction accepts JSON or multipart/form-data with a "preuve" file.
func decodeTransaction(w http.ResponseWriter, r *http.Request) (transactionInput, bool) {
	in := transactionInput{fields: make(map[string]string)}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Multipart form parse error - " + err.Error()})
			return in, false
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				in.fields[k] = v[0]
			}
		}
		if files := r.MultipartForm.File["preuve"]; len(files) > 0 {
			in.proof = "/media/preuves/" + files[0].Filename
		}
		return in, true
	}

	raw := make(map[string]any)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error - " + err.Error()})
		return in, false
	}
	for k, v := range raw {
		if v != nil {
			in.fields[k] = fmt.Sprint(v)
		}
	}
	return in, true
}

// applyLocked validates in and copies it onto tx. create requires every field.
func (s *Server) applyLocked(tx *transaction, in transactionInput, create bool) map[string][]string {
	errs := make(map[string][]string)
	required := func(field string) (string, bool) {
		v, ok := in.fields[field]
		if !ok && create {
			errs[field] = append(errs[field], "Ce champ est obligatoire.")
		}
		return v, ok
	}

	if v, ok := required("amount"); ok {
		if cents := parseCents(v); cents <= 0 {
			errs["amount"] = append(errs["amount"], "Le montant doit être positif.")
		} else {
			tx.Amount = formatCents(cents)
		}
	}
	if v, ok := required("date"); ok {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			errs["date"] = append(errs["date"], "La date n'a pas le bon format.")
		} else {
			tx.Date = v
		}
	}
	if v, ok := required("type"); ok {
		if v != "income" && v != "expense" {
			errs["type"] = append(errs["type"], fmt.Sprintf("%q n'est pas un choix valide.", v))
		} else {
			tx.Type = v
		}
	}
	if v, ok := required("category"); ok {
		id, _ := strconv.ParseInt(v, 10, 64)
		c := s.categories[id]
		if c == nil || c.User != tx.User {
			errs["category"] = append(errs["category"], "Catégorie invalide.")
		} else {
			tx.Category = c.ID
			tx.CategoryName = c.Name
		}
	}
	if v, ok := in.fields["description"]; ok {
		tx.Description = v
	}
	if in.proof != "" {
		tx.Proof = in.proof
	}
	return errs
}

func totals(txs []*transaction) (income, expense int64) {
	for _, tx := range txs {
		if tx.Type == "income" {
			income += parseCents(tx.Amount)
		} else {
			expense += parseCents(tx.Amount)
		}
	}
	return income, expense
}

func parseCents(s string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
