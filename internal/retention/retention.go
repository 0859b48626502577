package retention

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/planforge-io/planforge/internal/store"
)

// Pruner periodically trims generation history down to a fixed number of
// most recent records.
type Pruner struct {
	cron   *cron.Cron
	store  store.Store
	keep   int
	logger *slog.Logger
}

// New creates a pruner that keeps the newest keep history records.
func New(st store.Store, keep int, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		cron:   cron.New(),
		store:  st,
		keep:   keep,
		logger: logger,
	}
}

// Schedule registers the prune job. The schedule is a standard cron
// expression (5 fields) or a predefined schedule like @daily.
func (p *Pruner) Schedule(schedule string) error {
	_, err := p.cron.AddFunc(schedule, p.prune)
	if err != nil {
		return fmt.Errorf("retention: invalid schedule %q: %w", schedule, err)
	}
	p.logger.Info("history pruning scheduled", "schedule", schedule, "keep", p.keep)
	return nil
}

// Start begins the cron loop. Blocks until the context is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.cron.Start()
	<-ctx.Done()
	p.cron.Stop()
	p.logger.Info("retention pruner stopped")
	return ctx.Err()
}

func (p *Pruner) prune() {
	removed, err := p.store.PruneHistory(p.keep)
	if err != nil {
		p.logger.Error("history prune failed", "error", err)
		return
	}
	if removed > 0 {
		p.logger.Info("history pruned", "removed", removed, "keep", p.keep)
	}
}
