package service

import (
	"context"
	"log/slog"
	"time"
)

// periodic runs a task immediately and then on every tick until its
// context is cancelled or stop is called.
type periodic struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func newPeriodic(name string, interval time.Duration, logger *slog.Logger, run func(context.Context)) *periodic {
	return &periodic{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logger.With(slog.String("task", name)),
		done:     make(chan struct{}),
	}
}

func (p *periodic) start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// disable marks the task as never started so stop returns at once.
func (p *periodic) disable() {
	close(p.done)
}

func (p *periodic) stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *periodic) loop(ctx context.Context) {
	defer close(p.done)

	// Run immediately on startup to clear any backlog.
	p.run(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// ── Expiry sweep ────────────────────────────────────────────────────────────

// ExpirySweeper periodically moves approved passes past their expiry to
// Expired. The sweep only touches unused passes, so it never races a scan
// into overwriting Used.
type ExpirySweeper struct {
	passes *PassService
	task   *periodic
}

// NewExpirySweeper creates a sweeper but does not start it. interval <= 0
// defaults to 5 minutes.
func NewExpirySweeper(passes *PassService, interval time.Duration, logger *slog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	sw := &ExpirySweeper{passes: passes}
	sw.task = newPeriodic("expiry sweep", interval, logger, sw.sweep)
	return sw
}

func (sw *ExpirySweeper) Start(ctx context.Context) {
	sw.task.start(ctx)
	sw.task.logger.Info("expiry sweeper started", slog.Duration("interval", sw.task.interval))
}

// Stop signals the sweeper to exit and waits for it to finish.
func (sw *ExpirySweeper) Stop() {
	sw.task.stop()
}

func (sw *ExpirySweeper) sweep(ctx context.Context) {
	n, err := sw.passes.ExpireDue(ctx)
	if err != nil {
		sw.task.logger.Error("expiry sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		sw.task.logger.Info("expired passes", slog.Int64("count", n))
	}
}

// ── Audit retention ─────────────────────────────────────────────────────────

// AuditPruner periodically deletes audit events older than a retention
// period. A retention of 0 disables pruning entirely.
type AuditPruner struct {
	audit     *AuditLog
	retention time.Duration
	task      *periodic
}

// PrunerConfig holds the parameters for NewAuditPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of audit history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 24.
	IntervalHours int
}

// NewAuditPruner creates a pruner but does not start it.
func NewAuditPruner(audit *AuditLog, cfg PrunerConfig, logger *slog.Logger) *AuditPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	p := &AuditPruner{
		audit:     audit,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
	p.task = newPeriodic("audit prune", interval, logger, p.prune)
	return p
}

func (p *AuditPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.task.logger.Info("audit pruner disabled (retention=0)")
		p.task.disable()
		return
	}
	p.task.start(ctx)
	p.task.logger.Info("audit pruner started",
		slog.Int("retention_days", int(p.retention.Hours()/24)),
		slog.Duration("interval", p.task.interval),
	)
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *AuditPruner) Stop() {
	p.task.stop()
}

func (p *AuditPruner) prune(ctx context.Context) {
	cutoff := p.audit.now().UTC().Add(-p.retention)
	deleted, err := p.audit.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.task.logger.Error("audit prune failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		p.task.logger.Info("audit prune",
			slog.Int64("deleted", deleted),
			slog.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
}
