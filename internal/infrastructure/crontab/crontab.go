// Package crontab schedules background maintenance: expired cache purge
// and chat message retention pruning.
package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"

	"github.com/ventureforge/pipeline-server/internal/config"
	"github.com/ventureforge/pipeline-server/internal/domain/cache"
	"github.com/ventureforge/pipeline-server/internal/domain/chat"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/logger"
	"github.com/ventureforge/pipeline-server/internal/utils/platformerrors"
)

const (
	defaultCleanupMinutes = 60
	cronJobTimeout        = 10 * time.Minute
)

type Crontab struct {
	ctab     *crontab.Crontab
	cache    cache.Store
	messages chat.Repository
}

func NewCrontab(cacheStore cache.Store, messages chat.Repository) *Crontab {
	return &Crontab{
		ctab:     crontab.New(),
		cache:    cacheStore,
		messages: messages,
	}
}

// Run schedules the maintenance jobs and blocks until ctx is cancelled.
func (c *Crontab) Run(ctx context.Context) error {
	// execute once on server start
	c.cleanup(ctx)

	interval := defaultCleanupMinutes
	if cfg := config.GetGlobal(); cfg != nil && cfg.CleanupCronMinutes > 0 {
		interval = cfg.CleanupCronMinutes
	}

	cronExpr := fmt.Sprintf("*/%d * * * *", interval)
	if err := c.ctab.AddJob(cronExpr, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), cronJobTimeout)
		defer cancel()
		c.cleanup(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add cleanup job")
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) cleanup(ctx context.Context) {
	log := logger.GetLogger()

	purged, err := c.cache.PurgeExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cache purge failed")
	} else if purged > 0 {
		log.Info().Int64("purged", purged).Msg("expired cache entries removed")
	}

	retention := 90 * 24 * time.Hour
	if cfg := config.GetGlobal(); cfg != nil && cfg.MessageRetention > 0 {
		retention = cfg.MessageRetention
	}
	cutoff := time.Now().UTC().Add(-retention)
	pruned, err := c.messages.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("message retention prune failed")
	} else if pruned > 0 {
		log.Info().Int64("pruned", pruned).Time("cutoff", cutoff).Msg("old chat messages pruned")
	}
}
