package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"folio/internal/auth"
	"folio/internal/config"
	"folio/internal/database"
)

const adminUsage = "usage: folio admin adduser <username> <password> <writer|editor|admin>"

// runAdmin runs a one-off administrative command against the database.
func runAdmin(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(adminUsage)
	}

	switch args[0] {
	case "adduser":
		if len(args) != 4 {
			return errors.New(adminUsage)
		}
		if cfg.Database.Driver == "sqlite3" {
			ensureSQLiteDir(cfg.Database.URL)
		}
		db, dialect, err := database.New(ctx, cfg.Database.Driver, cfg.Database.URL, 1)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(ctx, db, dialect); err != nil {
			return err
		}

		authService, err := auth.NewService(auth.NewRepository(db, dialect), cfg.Auth.SessionKey, true)
		if err != nil {
			return err
		}
		if err := authService.RegisterUser(ctx, args[1], args[2], args[3]); err != nil {
			return err
		}
		slog.Info("user created", "username", args[1], "role", args[3])
		return nil
	default:
		return fmt.Errorf("unknown admin command %q\n%s", args[0], adminUsage)
	}
}
