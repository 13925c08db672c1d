package wikidb

import (
	"context"
	"errors"
	"log/slog"

	"folio/internal/models"
)

type local struct {
	store Store
}

// NewLocal returns a Service that calls store in-process.
func NewLocal(store Store) Service {
	return &local{store: store}
}

func (s *local) FetchAllPages(ctx context.Context) ([]string, error) {
	names, err := s.store.ListNames(ctx)
	if err != nil {
		slog.Error("database query error", "op", "all-pages", "err", err)
	}
	return names, err
}

func (s *local) FetchAllPagesData(ctx context.Context) ([]models.Page, error) {
	pages, err := s.store.ListAll(ctx)
	if err != nil {
		slog.Error("database query error", "op", "all-pages-data", "err", err)
	}
	return pages, err
}

func (s *local) FetchPage(ctx context.Context, name string) (models.Page, bool, error) {
	p, found, err := s.store.FindByName(ctx, name)
	if err != nil {
		slog.Error("database query error", "op", "get-page", "name", name, "err", err)
	}
	return p, found, err
}

func (s *local) FetchPageByID(ctx context.Context, id int64) (models.Page, bool, error) {
	p, found, err := s.store.FindByID(ctx, id)
	if err != nil {
		slog.Error("database query error", "op", "get-page-by-id", "id", id, "err", err)
	}
	return p, found, err
}

func (s *local) CreatePage(ctx context.Context, name, content string) (int64, error) {
	id, err := s.store.Create(ctx, name, content)
	if err != nil && !errors.Is(err, ErrPageExists) {
		slog.Error("database query error", "op", "create-page", "name", name, "err", err)
	}
	return id, err
}

func (s *local) SavePage(ctx context.Context, id int64, content string) error {
	err := s.store.Save(ctx, id, content)
	if err != nil {
		slog.Error("database query error", "op", "save-page", "id", id, "err", err)
	}
	return err
}

func (s *local) DeletePage(ctx context.Context, id int64) error {
	err := s.store.Delete(ctx, id)
	if err != nil {
		slog.Error("database query error", "op", "delete-page", "id", id, "err", err)
	}
	return err
}
