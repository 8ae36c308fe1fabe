package daemon

import (
	"context"
	"log/slog"
	"time"
)

// ResyncFunc re-reads the server's window tree into the window manager.
type ResyncFunc func(ctx context.Context) error

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	// Interval between passes. Zero disables periodic passes.
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically resynchronizes the stacking list with the
// server so a missed event cannot leave it drifting forever.
type Reconciler struct {
	interval time.Duration
	resync   ResyncFunc
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, resync ResyncFunc) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		interval: cfg.Interval,
		resync:   resync,
		logger:   logger.With("component", "reconciler"),
	}
}

func (r *Reconciler) String() string { return "reconciler" }

// Serve runs reconciliation passes until ctx is done.
func (r *Reconciler) Serve(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Debug("periodic reconciliation disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.ReconcileNow(ctx)
		}
	}
}

// ReconcileNow performs a single reconciliation pass.
func (r *Reconciler) ReconcileNow(ctx context.Context) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	start := time.Now()
	if err := r.resync(ctx); err != nil {
		r.logger.Warn("reconcile failed", "error", err)
		return
	}
	r.logger.Debug("reconciled", "took", time.Since(start))
}
