// Package retention purges old workflow executions. Terminal
// executions (completed/failed) older than the configured TTL are
// optionally archived to local JSONL files, then deleted together with
// their logs. Running executions are never touched. Archive failures
// are fail-safe: nothing is purged if the archive write fails.
package retention

import (
	"context"
	"time"

	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultExecutionTTL keeps terminal executions for 30 days.
const DefaultExecutionTTL = 30 * 24 * time.Hour

// Archiver persists expired executions before they are purged.
type Archiver interface {
	Kind() string
	ArchiveExecutions(ctx context.Context, executions []models.Execution) (string, error)
}

// Janitor periodically purges expired executions.
type Janitor struct {
	store    store.Store
	ttl      time.Duration
	interval time.Duration
	archiver Archiver // nil disables archiving
}

// NewJanitor creates a retention janitor. The interval is clamped to a
// one hour minimum.
func NewJanitor(s store.Store, ttl, interval time.Duration) *Janitor {
	if ttl <= 0 {
		ttl = DefaultExecutionTTL
	}
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{store: s, ttl: ttl, interval: interval}
}

// SetArchiver enables archive-before-purge.
func (j *Janitor) SetArchiver(a Archiver) {
	j.archiver = a
	log.Info().Str("kind", a.Kind()).Msg("Execution archiver enabled")
}

// Start runs the janitor until ctx is canceled. A cycle runs
// immediately on startup.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("ttl", j.ttl).
		Dur("interval", j.interval).
		Bool("archiving", j.archiver != nil).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one archive+purge sweep and returns the number of
// executions purged.
func (j *Janitor) RunCycle(ctx context.Context) int {
	start := time.Now()
	cutoff := time.Now().Add(-j.ttl)

	if j.archiver != nil {
		expired, err := j.store.ListExpiredExecutions(ctx, cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("Retention cycle: failed to list expired executions")
			return 0
		}
		if len(expired) == 0 {
			return 0
		}
		uri, err := j.archiver.ArchiveExecutions(ctx, expired)
		if err != nil {
			log.Warn().Err(err).Msg("Archive failed, skipping purge")
			return 0
		}
		log.Debug().Str("uri", uri).Int("count", len(expired)).Msg("Expired executions archived")
	}

	purged, err := j.store.PurgeExecutions(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Retention cycle: purge failed")
		return 0
	}

	if purged > 0 {
		log.Info().
			Int("purged", purged).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
	return purged
}
