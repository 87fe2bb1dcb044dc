package core

import "time"

// TransactionStats is the /transactions/stats/ summary.
type TransactionStats struct {
	TotalIncome        Amount     `json:"total_income"`
	TotalExpenses      Amount     `json:"total_expenses"`
	Balance            Amount     `json:"balance"`
	TransactionCount   int        `json:"transaction_count"`
	IncomeCount        int        `json:"income_count"`
	ExpenseCount       int        `json:"expense_count"`
	AverageTransaction Amount     `json:"average_transaction"`
	PeriodStart        *time.Time `json:"period_start"`
	PeriodEnd          *time.Time `json:"period_end"`
}

// CategoryBreakdown is one row of /transactions/by_category/.
type CategoryBreakdown struct {
	CategoryName     string    `json:"category__name"`
	CategoryType     EntryType `json:"category__type"`
	TotalAmount      Amount    `json:"total_amount"`
	TransactionCount int       `json:"transaction_count"`
	Percentage       float64   `json:"percentage"`
}

// CategoryStats is one row of /categories/stats/.
type CategoryStats struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name"`
	Type               EntryType     `json:"type"`
	TransactionCount   int           `json:"transaction_count"`
	TotalAmount        Amount        `json:"total_amount"`
	PercentageOfTotal  float64       `json:"percentage_of_total"`
	RecentTransactions []Transaction `json:"recent_transactions"`
}

// CategoryTransactions is the /categories/{id}/transactions/ payload.
type CategoryTransactions struct {
	Category         Category      `json:"category"`
	TotalAmount      Amount        `json:"total_amount"`
	TransactionCount int           `json:"transaction_count"`
	Transactions     []Transaction `json:"transactions"`
}

// DashboardStatistics are the headline counters of /auth/dashboard/.
type DashboardStatistics struct {
	TotalGroups       int    `json:"total_groups"`
	TotalTransactions int    `json:"total_transactions"`
	TotalBalance      Amount `json:"total_balance"`
}

// RecentTransaction is the compact transaction form used by the dashboard.
type RecentTransaction struct {
	ID          int64     `json:"id"`
	Amount      Amount    `json:"amount"`
	Description string    `json:"description"`
	Date        Date      `json:"date"`
	Type        EntryType `json:"type"`
}

// ActiveGroup is a group membership listed on the dashboard.
type ActiveGroup struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Amount Amount `json:"amount"`
}

// Dashboard is the /auth/dashboard/ payload.
type Dashboard struct {
	User               User                `json:"user"`
	Statistics         DashboardStatistics `json:"statistics"`
	RecentTransactions []RecentTransaction `json:"recent_transactions"`
	ActiveGroups       []ActiveGroup       `json:"active_groups"`
}

// Overview joins the dashboard with the statistics endpoints.
type Overview struct {
	Dashboard        Dashboard
	TransactionStats TransactionStats
	CategoryStats    []CategoryStats
	ByCategory       []CategoryBreakdown
}
