package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"folio/internal/auth"
	"folio/internal/backup"
	"folio/internal/bridge"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/deploy"
	"folio/internal/page"
	"folio/internal/relay"
	"folio/internal/render"
	"folio/internal/web"
	"folio/internal/wikidb"
)

// app carries the state shared by the deployment units of one process.
type app struct {
	cfg *config.Config

	relay   relay.Relay
	db      *sql.DB
	dialect database.Dialect

	stopWikiDB   func()
	stopMarkdown func()
	bridge       *bridge.Bridge
	server       *http.Server
	scheduler    *backup.Scheduler
	pages        wikidb.Service
}

func (a *app) units() []deploy.Unit {
	units := []deploy.Unit{
		{Name: "relay", Start: a.startRelay, Stop: a.stopRelay},
	}
	if a.cfg.Deploy.RunsDatabase() || a.cfg.Auth.Enabled {
		units = append(units, deploy.Unit{Name: "database", Start: a.startDatabase, Stop: a.stopDatabase})
	}
	if a.cfg.Deploy.RunsDatabase() {
		units = append(units, deploy.Unit{Name: "wikidb", Start: a.startWikiDB, Stop: a.stopWikiDBUnit})
	}
	if a.cfg.Deploy.RunsHTTP() {
		units = append(units, deploy.Unit{Name: "http", Start: a.startHTTP, Stop: a.stopHTTP})
		if a.cfg.Backup.Schedule != "" {
			units = append(units, deploy.Unit{Name: "backup-scheduler", Start: a.startScheduler, Stop: a.stopScheduler})
		}
	}
	return units
}

func (a *app) startRelay(ctx context.Context) error {
	switch a.cfg.Relay.Type {
	case "redis":
		r, err := relay.DialRedis(ctx, a.cfg.Relay.Addr, a.cfg.Relay.Password, a.cfg.Relay.DB, a.cfg.Relay.Timeout)
		if err != nil {
			return err
		}
		a.relay = r
	default:
		a.relay = relay.NewLocal(a.cfg.Relay.Timeout)
	}
	return nil
}

func (a *app) stopRelay(ctx context.Context) error {
	return a.relay.Close()
}

func (a *app) startDatabase(ctx context.Context) error {
	if a.cfg.Database.Driver == "sqlite3" {
		ensureSQLiteDir(a.cfg.Database.URL)
	}
	db, dialect, err := database.New(ctx, a.cfg.Database.Driver, a.cfg.Database.URL, a.cfg.Database.MaxPoolSize)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return err
	}
	slog.Info("database migrated", "driver", a.cfg.Database.Driver)
	a.db, a.dialect = db, dialect
	return nil
}

func (a *app) stopDatabase(ctx context.Context) error {
	return a.db.Close()
}

func (a *app) startWikiDB(ctx context.Context) error {
	svc := wikidb.NewLocal(page.NewRepository(a.db, a.dialect))
	stop, err := wikidb.Serve(a.relay, a.cfg.WikiDB.Queue, svc)
	if err != nil {
		return err
	}
	a.stopWikiDB = stop
	return nil
}

func (a *app) stopWikiDBUnit(ctx context.Context) error {
	a.stopWikiDB()
	return nil
}

// startHTTP brings up the web tier. A failure undoes whatever part of it
// already started.
func (a *app) startHTTP(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.releaseHTTP()
		}
	}()

	a.pages = wikidb.NewProxy(a.relay, a.cfg.WikiDB.Queue)

	renderer, err := render.New(a.cfg.Render.Format, a.cfg.Render.Style)
	if err != nil {
		return err
	}
	a.stopMarkdown, err = bridge.RegisterMarkdown(a.relay, renderer)
	if err != nil {
		return err
	}

	a.bridge, err = bridge.New(ctx, a.relay)
	if err != nil {
		return err
	}

	var authRepo *auth.Repository
	if a.db != nil {
		authRepo = auth.NewRepository(a.db, a.dialect)
	}
	authService, err := auth.NewService(authRepo, a.cfg.Auth.SessionKey, a.cfg.Auth.Enabled)
	if err != nil {
		return err
	}

	backupService, err := a.backupService(ctx)
	if err != nil {
		return err
	}

	handler, err := web.NewServer(ctx, web.Options{
		Pages:          a.pages,
		Renderer:       renderer,
		Style:          a.cfg.Render.Style,
		Relay:          a.relay,
		Auth:           authService,
		Tokens:         auth.NewTokenService(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL),
		Bridge:         a.bridge,
		Backup:         backupService,
		RateLimit:      a.cfg.HTTP.RateLimit,
		TrustedProxies: a.cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.HTTP.Port))
	if err != nil {
		return fmt.Errorf("could not start a HTTP server: %w", err)
	}
	a.server = &http.Server{Handler: handler}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()
	slog.Info("HTTP server running", "port", a.cfg.HTTP.Port)
	return nil
}

func (a *app) stopHTTP(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
		a.server = nil
	}
	a.releaseHTTP()
	return err
}

// releaseHTTP closes the bridge and the markdown consumer if they are running.
func (a *app) releaseHTTP() {
	if a.bridge != nil {
		a.bridge.Close()
		a.bridge = nil
	}
	if a.stopMarkdown != nil {
		a.stopMarkdown()
		a.stopMarkdown = nil
	}
}

func (a *app) backupService(ctx context.Context) (*backup.Service, error) {
	var target backup.Target
	switch a.cfg.Backup.Target {
	case "s3":
		s3Target, err := backup.NewS3(ctx, a.cfg.Backup.S3Bucket, a.cfg.Backup.S3Region, a.cfg.Backup.S3Prefix)
		if err != nil {
			return nil, err
		}
		target = s3Target
	default:
		target = backup.NewGlot(a.cfg.Backup.GlotURL, a.cfg.Backup.GlotToken)
	}
	return backup.NewService(a.pages, target), nil
}

func (a *app) startScheduler(ctx context.Context) error {
	svc, err := a.backupService(ctx)
	if err != nil {
		return err
	}
	a.scheduler, err = backup.NewScheduler(svc, a.cfg.Backup.Schedule)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", config.KeyBackupSchedule, err)
	}
	a.scheduler.Start()
	return nil
}

func (a *app) stopScheduler(ctx context.Context) error {
	a.scheduler.Stop(ctx)
	return nil
}

// ensureSQLiteDir creates the directory of a file: DSN so the first run
// works without setup.
func ensureSQLiteDir(dsn string) {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" || strings.Contains(dsn, "mode=memory") {
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Warn("could not create database directory", "dir", dir, "err", err)
		}
	}
}
