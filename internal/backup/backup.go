// Package backup uploads a snapshot of every page to an external target.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"folio/internal/models"
	"folio/internal/wikidb"
)

// ErrUpstream is returned when the backup target rejects a snapshot.
var ErrUpstream = errors.New("backup target failed")

// Target stores a snapshot and returns a URL where it can be read.
type Target interface {
	Upload(ctx context.Context, pages []models.Page) (string, error)
}

// Service snapshots the wiki through the page service.
type Service struct {
	Pages  wikidb.Service
	Target Target
}

// NewService creates a backup service.
func NewService(pages wikidb.Service, target Target) *Service {
	return &Service{Pages: pages, Target: target}
}

// Run fetches every page and uploads them, returning the backup URL.
func (s *Service) Run(ctx context.Context) (string, error) {
	start := time.Now()
	pages, err := s.Pages.FetchAllPagesData(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch pages for backup: %w", err)
	}

	url, err := s.Target.Upload(ctx, pages)
	if err != nil {
		return "", err
	}
	slog.Info("backup created", "url", url, "pages", len(pages), "duration", time.Since(start))
	return url, nil
}
