package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadecraft/channelsync/internal/service"
)

// SyncWorker periodically synchronizes the full active catalog to every
// configured channel.
type SyncWorker struct {
	syncService *service.SyncService
	channels    []service.Channel
	interval    time.Duration
}

// NewSyncWorker constructs a SyncWorker.
func NewSyncWorker(syncService *service.SyncService, channels []service.Channel, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		syncService: syncService,
		channels:    channels,
		interval:    interval,
	}
}

// Start begins the periodic sync loop and listens for context cancellation.
func (w *SyncWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Int("channels", len(w.channels)).Msg("Starting sync worker")

	// Run immediately on start
	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Sync worker stopped")
			return
		}
	}
}

func (w *SyncWorker) run(ctx context.Context) {
	for _, ch := range w.channels {
		if ctx.Err() != nil {
			return
		}
		log.Info().Str("channel", string(ch.Code())).Msg("Syncing active catalog...")

		start := time.Now()
		summary, err := w.syncService.SyncProducts(ctx, ch, nil)
		if err != nil {
			log.Error().Err(err).Str("channel", string(ch.Code())).Msg("Catalog sync failed")
			continue
		}

		log.Info().
			Str("channel", string(ch.Code())).
			Int("succeeded", summary.Succeeded).
			Int("failed", summary.Failed).
			Int("submitted", summary.Submitted).
			Dur("duration", time.Since(start)).
			Msg("Catalog sync completed")
	}
}
