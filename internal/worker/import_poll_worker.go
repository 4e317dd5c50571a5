package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadecraft/channelsync/internal/service"
)

// ImportPollWorker re-checks open batch imports against the marketplace.
// Import state transitions come only from these probes; the worker never
// marks a job terminal on its own, it only stops polling jobs older than
// maxAge and leaves their last observed status standing.
type ImportPollWorker struct {
	tracker     *service.ImportTracker
	syncService *service.SyncService
	interval    time.Duration
	maxAge      time.Duration
}

// NewImportPollWorker constructs an ImportPollWorker.
func NewImportPollWorker(tracker *service.ImportTracker, syncService *service.SyncService, interval, maxAge time.Duration) *ImportPollWorker {
	return &ImportPollWorker{
		tracker:     tracker,
		syncService: syncService,
		interval:    interval,
		maxAge:      maxAge,
	}
}

// Start begins the periodic poll loop until context is canceled.
func (w *ImportPollWorker) Start(ctx context.Context) {
	log.Info().
		Dur("interval", w.interval).
		Dur("max_age", w.maxAge).
		Msg("Starting import poll worker")

	// Run immediately on start
	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Import poll worker stopped")
			return
		}
	}
}

func (w *ImportPollWorker) run(ctx context.Context) {
	open := w.tracker.OpenJobs()
	if len(open) == 0 {
		return
	}
	log.Info().Int("count", len(open)).Msg("Polling open batch imports")

	for _, res := range w.tracker.Poll(ctx) {
		log.Info().
			Str("import_id", res.Job.ExternalImportID).
			Str("status", string(res.Job.Status)).
			Bool("error_report", res.Job.HasErrorReport).
			Bool("new_entity_report", res.Job.HasNewEntityReport).
			Int("groups", len(res.Groups)).
			Msg("Batch import reached terminal state")
		w.syncService.ResolveImport(ctx, res)
	}

	w.tracker.Abandon(w.maxAge)
}
