package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Pruner deletes bookkeeping rows older than a cutoff and reports how many went.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PrunerFunc adapts a plain method such as outbox.Repository.PrunePublished.
type PrunerFunc func(ctx context.Context, cutoff time.Time) (int64, error)

func (f PrunerFunc) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return f(ctx, cutoff)
}

// Retention prunes inbox and outbox tables. Each table is attempted even if another fails.
type Retention struct {
	tables map[string]Pruner
	keep   time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewRetention(keep time.Duration, logger *slog.Logger, tables map[string]Pruner) *Retention {
	if keep <= 0 {
		keep = 7 * 24 * time.Hour
	}
	return &Retention{tables: tables, keep: keep, logger: logger, now: time.Now}
}

func (r *Retention) RunOnce(ctx context.Context) error {
	cutoff := r.now().Add(-r.keep)
	var errs []error
	for name, p := range r.tables {
		n, err := p.Prune(ctx, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			r.logger.Info("pruned rows", "table", name, "rows", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
		}
	}
	return errors.Join(errs...)
}
