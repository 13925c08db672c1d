package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"folio/internal/bridge"
	"folio/internal/config"
	"folio/internal/relay"
)

func TestStartHTTPReleasesOnFailure(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.HTTP.Port = busy.Addr().(*net.TCPAddr).Port

	r := relay.NewLocal(time.Second)
	defer r.Close()
	a := &app{cfg: cfg, relay: r}

	ctx := context.Background()
	if err := a.startHTTP(ctx); err == nil {
		t.Fatal("startHTTP() on a busy port error = nil")
	}
	if a.bridge != nil || a.stopMarkdown != nil || a.server != nil {
		t.Errorf("startHTTP() left state behind: bridge=%v markdown=%v server=%v", a.bridge != nil, a.stopMarkdown != nil, a.server != nil)
	}

	msg, err := relay.NewMessage("", "# hi")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Request(ctx, bridge.AddressMarkdown, msg); !errors.Is(err, relay.ErrNoHandler) {
		t.Errorf("markdown request after failed start error = %v, want ErrNoHandler", err)
	}
}

func TestStartHTTPAndStop(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	cfg.HTTP.Port = ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	r := relay.NewLocal(time.Second)
	defer r.Close()
	a := &app{cfg: cfg, relay: r}

	ctx := context.Background()
	if err := a.startHTTP(ctx); err != nil {
		t.Fatalf("startHTTP() error = %v", err)
	}
	msg, _ := relay.NewMessage("", "# hi")
	if _, err := r.Request(ctx, bridge.AddressMarkdown, msg); err != nil {
		t.Errorf("markdown request error = %v", err)
	}

	if err := a.stopHTTP(ctx); err != nil {
		t.Fatalf("stopHTTP() error = %v", err)
	}
	if _, err := r.Request(ctx, bridge.AddressMarkdown, msg); !errors.Is(err, relay.ErrNoHandler) {
		t.Errorf("markdown request after stop error = %v, want ErrNoHandler", err)
	}
}
