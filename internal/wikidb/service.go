// Package wikidb exposes the page store as a service that can be called
// directly or through a relay address, so the web tier can run in a
// different process from the database.
package wikidb

import (
	"context"

	"folio/internal/models"
	"folio/internal/page"
)

// ErrPageExists is returned when creating a page whose name is taken.
var ErrPageExists = page.ErrExists

// Service is the set of page operations used by the web tier.
type Service interface {
	FetchAllPages(ctx context.Context) ([]string, error)
	FetchAllPagesData(ctx context.Context) ([]models.Page, error)
	FetchPage(ctx context.Context, name string) (models.Page, bool, error)
	FetchPageByID(ctx context.Context, id int64) (models.Page, bool, error)
	CreatePage(ctx context.Context, name, content string) (int64, error)
	SavePage(ctx context.Context, id int64, content string) error
	DeletePage(ctx context.Context, id int64) error
}

// Store is the storage used by the local service; *page.Repository
// satisfies it.
type Store interface {
	ListNames(ctx context.Context) ([]string, error)
	ListAll(ctx context.Context) ([]models.Page, error)
	FindByName(ctx context.Context, name string) (models.Page, bool, error)
	FindByID(ctx context.Context, id int64) (models.Page, bool, error)
	Create(ctx context.Context, name, content string) (int64, error)
	Save(ctx context.Context, id int64, content string) error
	Delete(ctx context.Context, id int64) error
}
