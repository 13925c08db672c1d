// Package deploy starts the units of a process in order and stops them in
// reverse.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Unit is one independently started part of the process.
type Unit struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// Deployment is the set of units that started successfully.
type Deployment struct {
	started []Unit
}

// Run starts units in order. If one fails, the units already started are
// stopped in reverse order and the start error is returned.
func Run(ctx context.Context, units ...Unit) (*Deployment, error) {
	d := &Deployment{}
	for _, u := range units {
		start := time.Now()
		if err := u.Start(ctx); err != nil {
			slog.Error("unit failed to start", "unit", u.Name, "err", err)
			if stopErr := d.Stop(context.WithoutCancel(ctx)); stopErr != nil {
				slog.Error("rollback incomplete", "err", stopErr)
			}
			return nil, fmt.Errorf("start %s: %w", u.Name, err)
		}
		d.started = append(d.started, u)
		slog.Info("unit started", "unit", u.Name, "duration", time.Since(start))
	}
	return d, nil
}

// Stop stops every started unit in reverse order and joins their errors.
func (d *Deployment) Stop(ctx context.Context) error {
	var errs []error
	for i := len(d.started) - 1; i >= 0; i-- {
		u := d.started[i]
		if u.Stop == nil {
			continue
		}
		if err := u.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", u.Name, err))
			continue
		}
		slog.Info("unit stopped", "unit", u.Name)
	}
	d.started = nil
	return errors.Join(errs...)
}
