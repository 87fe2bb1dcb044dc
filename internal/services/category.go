package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"efinance/internal/cache"
	"efinance/internal/core"
	"efinance/internal/log"
)

// CategoryInput creates a category.
type CategoryInput struct {
	Name  string         `json:"name"`
	Type  core.EntryType `json:"type"`
	Group *int64         `json:"group,omitempty"`
}

// CategoryPatch changes only the non-nil fields.
type CategoryPatch struct {
	Name *string         `json:"name,omitempty"`
	Type *core.EntryType `json:"type,omitempty"`
}

type CategoryService struct {
	client Requester
	pages  cache.Cache[core.Page[core.Category]]
	logger *slog.Logger
}

// NewCategoryService builds the service. pages may be nil to disable caching.
func NewCategoryService(client Requester, pages cache.Cache[core.Page[core.Category]]) *CategoryService {
	return &CategoryService{
		client: client,
		pages:  pages,
		logger: componentLogger(log.ComponentCategory),
	}
}

// List returns one page of categories, served from cache when fresh.
func (s *CategoryService) List(ctx context.Context, page int) (core.Page[core.Category], error) {
	fetch := func() (core.Page[core.Category], error) {
		var p core.Page[core.Category]
		if err := s.client.Get(ctx, pageEndpoint("/categories/", page), &p); err != nil {
			return core.Page[core.Category]{}, fmt.Errorf("list categories: %w", err)
		}
		return p, nil
	}
	if s.pages == nil {
		return fetch()
	}
	return cache.Load(s.pages, "page:"+strconv.Itoa(max(page, 1)), fetch)
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (core.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return core.Category{}, core.ErrEmptyName
	}
	if !in.Type.IsValid() {
		return core.Category{}, core.ErrInvalidEntryType
	}
	var c core.Category
	if err := s.client.Post(ctx, "/categories/", in, &c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.invalidate(ctx, log.OpCreate, c.ID)
	return c, nil
}

func (s *CategoryService) Stats(ctx context.Context) ([]core.CategoryStats, error) {
	var stats []core.CategoryStats
	if err := s.client.Get(ctx, "/categories/stats/", &stats); err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	return stats, nil
}

func (s *CategoryService) Update(ctx context.Context, id int64, in CategoryPatch) (core.Category, error) {
	if in.Type != nil && !in.Type.IsValid() {
		return core.Category{}, core.ErrInvalidEntryType
	}
	var c core.Category
	if err := s.client.Patch(ctx, fmt.Sprintf("/categories/%d/", id), in, &c); err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", id, err)
	}
	s.invalidate(ctx, log.OpUpdate, id)
	return c, nil
}

// Delete fails with a 400 *api.HTTPError while transactions still use the category.
func (s *CategoryService) Delete(ctx context.Context, id int64) (core.Message, error) {
	var msg core.Message
	if err := s.client.Delete(ctx, fmt.Sprintf("/categories/%d/", id), &msg); err != nil {
		return core.Message{}, fmt.Errorf("delete category %d: %w", id, err)
	}
	s.invalidate(ctx, log.OpDelete, id)
	return msg, nil
}

func (s *CategoryService) Transactions(ctx context.Context, id int64) (core.CategoryTransactions, error) {
	var out core.CategoryTransactions
	if err := s.client.Get(ctx, fmt.Sprintf("/categories/%d/transactions/", id), &out); err != nil {
		return core.CategoryTransactions{}, fmt.Errorf("category %d transactions: %w", id, err)
	}
	return out, nil
}

// SessionChanged drops listings fetched under the previous session.
func (s *CategoryService) SessionChanged(ctx context.Context) {
	if s.pages == nil {
		return
	}
	s.pages.Purge()
	s.logger.DebugContext(ctx, "category cache purged on session change")
}

func (s *CategoryService) invalidate(ctx context.Context, op string, id int64) {
	if s.pages == nil {
		return
	}
	s.pages.Purge()
	s.logger.DebugContext(ctx, "category cache purged", log.FieldOperation, op, log.FieldCategoryID, id)
}
