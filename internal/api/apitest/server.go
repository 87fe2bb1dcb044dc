// Package apitest runs an in-process fake of the finance backend for tests.
package apitest

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const (
	BasePath = "/api/v1"

	// ResetCode is the code every password reset request issues.
	ResetCode = "123456"

	categoryPageSize    = 5
	transactionPageSize = 3
)

var secret = []byte("apitest-secret")

// User is a registered account.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Solde     string `json:"solde"`
	IsActive  bool   `json:"is_active"`
	password  string
}

type category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	User int64  `json:"user"`
}

type transaction struct {
	ID           int64  `json:"id"`
	Amount       string `json:"amount"`
	Date         string `json:"date"`
	Description  string `json:"description"`
	Type         string `json:"type"`
	Category     int64  `json:"category"`
	CategoryName string `json:"category_name"`
	Proof        string `json:"preuve,omitempty"`
	User         int64  `json:"user"`
}

// Request is a recorded inbound call.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Server is the fake backend. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	nextID       int64
	generation   int
	users        map[string]*User
	categories   map[int64]*category
	transactions map[int64]*transaction
	blacklist    map[string]bool
	resetCodes   map[string]string
	requests     []Request
	failRefresh  bool
	refreshDelay time.Duration
	rejectAll    bool
}

// New starts a server. Stop it with Close.
func New() *Server {
	s := &Server{
		users:        make(map[string]*User),
		categories:   make(map[int64]*category),
		transactions: make(map[int64]*transaction),
		blacklist:    make(map[string]bool),
		resetCodes:   make(map[string]string),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// BaseURL is the API root clients should be pointed at.
func (s *Server) BaseURL() string { return s.URL + BasePath }

// AddUser registers an account directly.
func (s *Server) AddUser(email, password string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, "", "")
}

// Tokens issues a fresh pair for email without going through login.
func (s *Server) Tokens(email string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[email]
	return s.issueLocked(u.ID, "access"), s.issueLocked(u.ID, "refresh")
}

// ExpireAccess invalidates every access token issued so far.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// FailRefresh makes the refresh endpoint reject every token.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// RefreshDelay slows the refresh endpoint down so concurrent callers overlap.
func (s *Server) RefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// RejectAll makes every authenticated endpoint answer 401, even after renewal.
func (s *Server) RejectAll(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAll = reject
}

// Calls counts requests whose method and path (relative to BasePath) match.
// An empty method matches any.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path && (method == "" || r.Method == method) {
			n++
		}
	}
	return n
}

// Requests returns every recorded request in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Last returns the most recent request to path.
func (s *Server) Last(path string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i], true
		}
	}
	return Request{}, false
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(trace, s.record)

	r.Route(BasePath, func(r chi.Router) {
		r.Post("/auth/register/", s.register)
		r.Post("/auth/login/", s.login)
		r.Post("/auth/token/refresh/", s.refresh)
		r.Post("/auth/password-reset/request/", s.resetRequest)
		r.Post("/auth/password-reset/validate-code/", s.resetValidate)
		r.Post("/auth/password-reset/confirm/", s.resetConfirm)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/logout/", s.logout)
			r.Get("/auth/profile/", s.profile)
			r.Put("/auth/profile/", s.updateProfile)
			r.Post("/auth/change-password/", s.changePassword)
			r.Get("/auth/dashboard/", s.dashboard)

			r.Get("/categories/", s.listCategories)
			r.Post("/categories/", s.createCategory)
			r.Get("/categories/stats/", s.categoryStats)
			r.Patch("/categories/{id}/", s.updateCategory)
			r.Delete("/categories/{id}/", s.deleteCategory)
			r.Get("/categories/{id}/transactions/", s.categoryTransactions)

			r.Get("/transactions/", s.listTransactions)
			r.Post("/transactions/", s.createTransaction)
			r.Get("/transactions/stats/", s.transactionStats)
			r.Get("/transactions/by_category/", s.byCategory)
			r.Get("/transactions/{id}/", s.getTransaction)
			r.Patch("/transactions/{id}/", s.updateTransaction)
			r.Delete("/transactions/{id}/", s.deleteTransaction)
		})
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   strings.TrimPrefix(r.URL.Path, BasePath),
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Authentication credentials were not provided."})
			return
		}
		s.mu.Lock()
		u, err := s.verifyLocked(raw, "access")
		reject := s.rejectAll
		s.mu.Unlock()
		if err != nil || reject {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

func (s *Server) issueLocked(userID int64, tokenType string) string {
	s.nextID++
	ttl := 5 * time.Minute
	if tokenType == "refresh" {
		ttl = 24 * time.Hour
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    userID,
		"token_type": tokenType,
		"gen":        s.generation,
		"jti":        strconv.FormatInt(s.nextID, 10),
		"exp":        time.Now().Add(ttl).Unix(),
	}).SignedString(secret)
	if err != nil {
		panic(err)
	}
	return token
}

func (s *Server) verifyLocked(raw, tokenType string) (*User, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims["token_type"] != tokenType {
		return nil, fmt.Errorf("wrong token type")
	}
	if tokenType == "access" {
		if gen, _ := claims["gen"].(float64); int(gen) != s.generation {
			return nil, fmt.Errorf("expired")
		}
	}
	if tokenType == "refresh" && s.blacklist[raw] {
		return nil, fmt.Errorf("blacklisted")
	}
	id, _ := claims["user_id"].(float64)
	for _, u := range s.users {
		if u.ID == int64(id) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("unknown user")
}

func (s *Server) addUserLocked(email, password, first, last string) *User {
	s.nextID++
	u := &User{ID: s.nextID, Email: email, FirstName: first, LastName: last, Solde: "0.00", IsActive: true, password: password}
	s.users[email] = u
	return u
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
		FirstName            string `json:"first_name"`
		LastName             string `json:"last_name"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Email]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]any{"email": []string{"Un utilisateur avec cet email existe déjà."}})
		return
	}
	if in.Password == "" || in.Password != in.PasswordConfirmation {
		writeJSON(w, http.StatusBadRequest, map[string]any{"password": []string{"Les mots de passe ne correspondent pas."}})
		return
	}
	u := s.addUserLocked(in.Email, in.Password, in.FirstName, in.LastName)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Utilisateur créé avec succès",
		"user":    u,
		"tokens": map[string]string{
			"access":  s.issueLocked(u.ID, "access"),
			"refresh": s.issueLocked(u.ID, "refresh"),
		},
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[in.Email]
	if !ok || u.password != in.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Identifiants invalides"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access":  s.issueLocked(u.ID, "access"),
		"refresh": s.issueLocked(u.ID, "refresh"),
		"user":    u,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.verifyLocked(in.Refresh, "refresh")
	if err != nil || s.failRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access": s.issueLocked(u.ID, "access")})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Refresh token requis"})
		return
	}
	s.mu.Lock()
	s.blacklist[in.RefreshToken] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Déconnexion réussie"})
}

func (s *Server) resetRequest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	if _, ok := s.users[in.Email]; ok {
		s.resetCodes[in.Email] = ResetCode
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Si un compte existe avec cet email, un code de réinitialisation a été envoyé.", "success": true})
}

func (s *Server) resetValidate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	valid := s.resetCodes[in.Email] != "" && s.resetCodes[in.Email] == in.Code
	s.mu.Unlock()
	if !valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Code invalide ou expiré", "success": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Code valide", "success": true})
}

func (s *Server) resetConfirm(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email                string `json:"email"`
		Code                 string `json:"code"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetCodes[in.Email] == "" || s.resetCodes[in.Email] != in.Code {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Code invalide ou expiré", "success": false})
		return
	}
	if in.Password == "" || in.Password != in.PasswordConfirmation {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Les mots de passe ne correspondent pas", "success": false})
		return
	}
	s.users[in.Email].password = in.Password
	delete(s.resetCodes, in.Email)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Mot de passe réinitialisé avec succès", "success": true})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := userFrom(r.Context())
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Email != nil && *in.Email != u.Email {
		if !strings.Contains(*in.Email, "@") {
			writeJSON(w, http.StatusBadRequest, map[string]any{"email": []string{"Saisissez une adresse e-mail valide."}})
			return
		}
		delete(s.users, u.Email)
		u.Email = *in.Email
		s.users[u.Email] = u
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OldPassword             string `json:"old_password"`
		NewPassword             string `json:"new_password"`
		NewPasswordConfirmation string `json:"new_password_confirmation"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := userFrom(r.Context())
	if u.password != in.OldPassword {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Ancien mot de passe incorrect"})
		return
	}
	if in.NewPassword == "" || in.NewPassword != in.NewPasswordConfirmation {
		writeJSON(w, http.StatusBadRequest, map[string]any{"new_password": []string{"Les mots de passe ne correspondent pas."}})
		return
	}
	u.password = in.NewPassword
	writeJSON(w, http.StatusOK, map[string]any{"message": "Mot de passe changé avec succès"})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := userFrom(r.Context())
	txs := s.userTransactionsLocked(u.ID)
	recent := make([]map[string]any, 0, 5)
	for i, tx := range txs {
		if i == 5 {
			break
		}
		recent = append(recent, map[string]any{
			"id": tx.ID, "amount": tx.Amount, "description": tx.Description, "date": tx.Date, "type": tx.Type,
		})
	}
	income, expense := totals(txs)
	writeJSON(w, http.StatusOK, map[string]any{
		"user": u,
		"statistics": map[string]any{
			"total_groups":       0,
			"total_transactions": len(txs),
			"total_balance":      formatCents(income - expense),
		},
		"recent_transactions": recent,
		"active_groups":       []any{},
	})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := userFrom(r.Context())
	var items []any
	for _, c := range s.userCategoriesLocked(u.ID) {
		items = append(items, c)
	}
	s.writePage(w, r, "/categories/", items, categoryPageSize)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"Ce champ ne peut être vide."}})
		return
	}
	if in.Type != "income" && in.Type != "expense" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"type": []string{fmt.Sprintf("%q n'est pas un choix valide.", in.Type)}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := &category{ID: s.nextID, Name: in.Name, Type: in.Type, User: userFrom(r.Context()).ID}
	s.categories[c.ID] = c
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) categoryStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := userFrom(r.Context())
	txs := s.userTransactionsLocked(u.ID)
	out := []map[string]any{}
	for _, c := range s.userCategoriesLocked(u.ID) {
		var count int
		var total int64
		for _, tx := range txs {
			if tx.Category == c.ID {
				count++
				total += parseCents(tx.Amount)
			}
		}
		out = append(out, map[string]any{
			"id": c.ID, "name": c.Name, "type": c.Type,
			"transaction_count": count, "total_amount": formatCents(total),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name *string `json:"name"`
		Type *string `json:"type"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.ownedCategoryLocked(w, r)
	if !ok {
		return
	}
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Type != nil {
		c.Type = *in.Type
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.ownedCategoryLocked(w, r)
	if !ok {
		return
	}
	count := 0
	for _, tx := range s.transactions {
		if tx.Category == c.ID {
			count++
		}
	}
	if count > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             fmt.Sprintf("Impossible de supprimer la catégorie %q. Elle contient %d transaction(s).", c.Name, count),
			"detail":            "Vous devez d'abord supprimer ou réassigner toutes les transactions de cette catégorie.",
			"category_id":       c.ID,
			"transaction_count": count,
		})
		return
	}
	delete(s.categories, c.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("La catégorie %q a été supprimée avec succès.", c.Name),
		"category_id": c.ID,
		"success":     true,
	})
}

func (s *Server) categoryTransactions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.ownedCategoryLocked(w, r)
	if !ok {
		return
	}
	var txs []*transaction
	var total int64
	for _, tx := range s.userTransactionsLocked(c.User) {
		if tx.Category == c.ID {
			txs = append(txs, tx)
			total += parseCents(tx.Amount)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category":          c,
		"total_amount":      formatCents(total),
		"transaction_count": len(txs),
		"transactions":      txs,
	})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []any
	for _, tx := range s.userTransactionsLocked(userFrom(r.Context()).ID) {
		items = append(items, tx)
	}
	s.writePage(w, r, "/transactions/", items, transactionPageSize)
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeTransaction(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := userFrom(r.Context())
	tx := &transaction{User: u.ID}
	if errs := s.applyLocked(tx, in, true); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	s.nextID++
	tx.ID = s.nextID
	s.transactions[tx.ID] = tx
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.ownedTransactionLocked(w, r); ok {
		writeJSON(w, http.StatusOK, tx)
	}
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeTransaction(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.ownedTransactionLocked(w, r)
	if !ok {
		return
	}
	next := *tx
	if errs := s.applyLocked(&next, in, false); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	*tx = next
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.ownedTransactionLocked(w, r)
	if !ok {
		return
	}
	delete(s.transactions, tx.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) transactionStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs := s.userTransactionsLocked(userFrom(r.Context()).ID)
	income, expense := totals(txs)
	var incomeCount, expenseCount int
	for _, tx := range txs {
		if tx.Type == "income" {
			incomeCount++
		} else {
			expenseCount++
		}
	}
	avg := (income + expense) / int64(max(len(txs), 1))
	writeJSON(w, http.StatusOK, map[string]any{
		"total_income":        formatCents(income),
		"total_expenses":      formatCents(expense),
		"balance":             formatCents(income - expense),
		"transaction_count":   len(txs),
		"income_count":        incomeCount,
		"expense_count":       expenseCount,
		"average_transaction": formatCents(avg),
	})
}

func (s *Server) byCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type row struct {
		Name   string
		Type   string
		Total  int64
		Count  int
		Weight float64
	}
	rows := make(map[int64]*row)
	var grand int64
	for _, tx := range s.userTransactionsLocked(userFrom(r.Context()).ID) {
		c := s.categories[tx.Category]
		if c == nil {
			continue
		}
		if rows[c.ID] == nil {
			rows[c.ID] = &row{Name: c.Name, Type: c.Type}
		}
		cents := parseCents(tx.Amount)
		rows[c.ID].Total += cents
		rows[c.ID].Count++
		grand += cents
	}
	list := make([]*row, 0, len(rows))
	for _, rw := range rows {
		list = append(list, rw)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Total > list[j].Total })
	out := make([]map[string]any, 0, len(list))
	for _, rw := range list {
		pct := 0.0
		if grand > 0 {
			pct = math.Round(float64(rw.Total)/float64(grand)*10000) / 100
		}
		out = append(out, map[string]any{
			"category__name":    rw.Name,
			"category__type":    rw.Type,
			"total_amount":      formatCents(rw.Total),
			"transaction_count": rw.Count,
			"percentage":        pct,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
