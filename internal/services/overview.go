package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"efinance/internal/core"
)

// LoadOverview fetches the dashboard and the three statistics endpoints
// concurrently. The first failure cancels the remaining calls.
func LoadOverview(ctx context.Context, auth *AuthService, categories *CategoryService, transactions *TransactionService) (core.Overview, error) {
	var ov core.Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d, err := auth.Dashboard(ctx)
		ov.Dashboard = d
		return err
	})
	g.Go(func() error {
		st, err := transactions.Stats(ctx)
		ov.TransactionStats = st
		return err
	})
	g.Go(func() error {
		st, err := categories.Stats(ctx)
		ov.CategoryStats = st
		return err
	})
	g.Go(func() error {
		rows, err := transactions.ByCategory(ctx)
		ov.ByCategory = rows
		return err
	})

	if err := g.Wait(); err != nil {
		return core.Overview{}, err
	}
	return ov, nil
}
