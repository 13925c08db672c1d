package page

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"folio/internal/database"
	"folio/internal/models"
)

// ErrExists is returned by Create when a page with the same name exists.
var ErrExists = errors.New("page already exists")

// Repository provides access to the page storage.
type Repository struct {
	DB      *sql.DB
	Dialect database.Dialect
}

// NewRepository creates a new page repository.
func NewRepository(db *sql.DB, dialect database.Dialect) *Repository {
	return &Repository{DB: db, Dialect: dialect}
}

// ListNames returns every page name in ascending order.
func (r *Repository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, r.Dialect.SQL(database.AllPages))
	if err != nil {
		return nil, fmt.Errorf("error listing pages: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListAll returns every page with its content, ordered by name.
func (r *Repository) ListAll(ctx context.Context) ([]models.Page, error) {
	rows, err := r.DB.QueryContext(ctx, r.Dialect.SQL(database.AllPagesData))
	if err != nil {
		return nil, fmt.Errorf("error listing page data: %w", err)
	}
	defer rows.Close()

	pages := []models.Page{}
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(&p.ID, &p.Name, &p.Content); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// FindByName looks a page up by its unique name.
func (r *Repository) FindByName(ctx context.Context, name string) (models.Page, bool, error) {
	p := models.Page{Name: name}
	err := r.DB.QueryRowContext(ctx, r.Dialect.SQL(database.GetPage), name).Scan(&p.ID, &p.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Page{}, false, nil
	}
	if err != nil {
		return models.Page{}, false, fmt.Errorf("error fetching page %q: %w", name, err)
	}
	return p, true, nil
}

// FindByID looks a page up by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (models.Page, bool, error) {
	var p models.Page
	err := r.DB.QueryRowContext(ctx, r.Dialect.SQL(database.GetPageByID), id).Scan(&p.ID, &p.Name, &p.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Page{}, false, nil
	}
	if err != nil {
		return models.Page{}, false, fmt.Errorf("error fetching page %d: %w", id, err)
	}
	return p, true, nil
}

// Create inserts a page and returns its engine-assigned id.
func (r *Repository) Create(ctx context.Context, name, content string) (int64, error) {
	var id int64
	var err error
	if r.Dialect.Returning {
		err = r.DB.QueryRowContext(ctx, r.Dialect.SQL(database.CreatePage), name, content).Scan(&id)
	} else {
		var res sql.Result
		res, err = r.DB.ExecContext(ctx, r.Dialect.SQL(database.CreatePage), name, content)
		if err == nil {
			id, err = res.LastInsertId()
		}
	}
	if database.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %q", ErrExists, name)
	}
	if err != nil {
		return 0, fmt.Errorf("error creating page: %w", err)
	}
	return id, nil
}

// Save replaces the content of page id. A missing id is not an error.
func (r *Repository) Save(ctx context.Context, id int64, content string) error {
	if _, err := r.DB.ExecContext(ctx, r.Dialect.SQL(database.SavePage), content, id); err != nil {
		return fmt.Errorf("error saving page %d: %w", id, err)
	}
	return nil
}

// Delete removes page id. A missing id is not an error.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.DB.ExecContext(ctx, r.Dialect.SQL(database.DeletePage), id); err != nil {
		return fmt.Errorf("error deleting page %d: %w", id, err)
	}
	return nil
}
