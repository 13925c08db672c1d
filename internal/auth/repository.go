package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"folio/internal/database"
	"folio/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Repository provides access to users, their roles and the permissions
// those roles grant.
type Repository struct {
	DB      *sql.DB
	Dialect database.Dialect
}

// NewRepository creates a new authentication repository.
func NewRepository(db *sql.DB, dialect database.Dialect) *Repository {
	return &Repository{DB: db, Dialect: dialect}
}

// FindUser finds a user and its roles by username.
func (r *Repository) FindUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.DB.QueryRowContext(ctx, r.Dialect.SQL(database.GetUser), username).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching user %q: %w", username, err)
	}

	rows, err := r.DB.QueryContext(ctx, r.Dialect.SQL(database.UserRoles), username)
	if err != nil {
		return nil, fmt.Errorf("error fetching roles of %q: %w", username, err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		user.Roles = append(user.Roles, role)
	}
	return &user, rows.Err()
}

// CreateUser stores a user with its roles in one transaction.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.Dialect.SQL(database.CreateUser), user.Username, user.PasswordHash); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrUserExists, user.Username)
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	for _, role := range user.Roles {
		if _, err := tx.ExecContext(ctx, r.Dialect.SQL(database.AddUserRole), user.Username, role); err != nil {
			return fmt.Errorf("error adding role %q: %w", role, err)
		}
	}
	return tx.Commit()
}

// Permissions lists the distinct permissions granted to username by its roles.
func (r *Repository) Permissions(ctx context.Context, username string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, r.Dialect.SQL(database.UserPermissions), username)
	if err != nil {
		return nil, fmt.Errorf("error fetching permissions of %q: %w", username, err)
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}
