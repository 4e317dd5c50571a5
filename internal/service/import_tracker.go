package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadecraft/channelsync/internal/cache"
	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
)

// GroupRef ties rows of a batch import back to the listing group they came
// from, so import reports can be resolved into per-group sync records.
type GroupRef struct {
	ProductID int      `json:"productId"`
	GroupKey  string   `json:"groupKey"`
	Title     string   `json:"title"`
	SKUs      []string `json:"skus"`
}

// ImportResult is a terminal import observation with its reports, produced
// at most once per job.
type ImportResult struct {
	Job             *models.ImportJob
	Groups          []GroupRef
	ErrorReport     string // raw text, the resolver parses
	NewEntityReport string
}

// ImportAuditor records status observations, best-effort.
// Implemented by cache.ImportAudit.
type ImportAuditor interface {
	Record(ctx context.Context, obs *cache.ImportObservation) error
}

// trackedImport is the tracker's view of one open import.
type trackedImport struct {
	job            *models.ImportJob
	groups         []GroupRef
	reportsFetched bool
	trackedAt      time.Time
}

// ImportTracker drives the batch-import state machine:
// submitted → processing → {complete, failed}. Transitions come exclusively
// from CheckStatus probes; the tracker never infers completion from elapsed
// time. Polling is idempotent: repeated complete observations fetch the
// reports only once.
type ImportTracker struct {
	channel BatchChannel
	audit   ImportAuditor

	mu   sync.Mutex
	jobs map[string]*trackedImport
}

// NewImportTracker constructs a tracker for one batch channel. audit may be
// nil when no observation trail is wanted (tests).
func NewImportTracker(channel BatchChannel, audit ImportAuditor) *ImportTracker {
	return &ImportTracker{
		channel: channel,
		audit:   audit,
		jobs:    map[string]*trackedImport{},
	}
}

// Track registers a submitted import and the groups it carries.
func (t *ImportTracker) Track(job *models.ImportJob, groups []GroupRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[job.ExternalImportID] = &trackedImport{
		job:       job,
		groups:    groups,
		trackedAt: time.Now(),
	}
}

// OpenJobs returns a snapshot of the imports still being tracked.
func (t *ImportTracker) OpenJobs() []models.ImportJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ImportJob, 0, len(t.jobs))
	for _, ti := range t.jobs {
		out = append(out, *ti.job)
	}
	return out
}

// Poll probes every open import once and returns results for those that
// reached a terminal state. Terminal jobs leave the registry once their
// result is handed out; everything the store needs for audit is already in
// the observation trail and sync_records.
func (t *ImportTracker) Poll(ctx context.Context) []*ImportResult {
	t.mu.Lock()
	ids := make([]string, 0, len(t.jobs))
	for id := range t.jobs {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	var results []*ImportResult
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return results
		default:
		}
		if res := t.pollOne(ctx, id); res != nil {
			results = append(results, res)
		}
	}
	return results
}

func (t *ImportTracker) pollOne(ctx context.Context, importID string) *ImportResult {
	observed, err := t.channel.CheckStatus(ctx, importID)
	if err != nil {
		// Probe failures are not transitions; try again next poll.
		log.Warn().Err(err).Str("import_id", importID).Msg("Import status probe failed")
		return nil
	}
	t.observe(ctx, observed)

	t.mu.Lock()
	ti, ok := t.jobs[importID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	ti.job = observed

	if observed.Status == models.ImportStatusUnknown {
		// Unclassifiable remote answer: keep polling as if processing,
		// but expose the distinct status to operators via OpenJobs.
		t.mu.Unlock()
		return nil
	}
	if !observed.Status.Terminal() {
		t.mu.Unlock()
		return nil
	}
	if ti.reportsFetched {
		t.mu.Unlock()
		return nil
	}
	ti.reportsFetched = true
	groups := ti.groups
	delete(t.jobs, importID)
	t.mu.Unlock()

	result := &ImportResult{Job: observed, Groups: groups}
	if observed.Status == models.ImportStatusFailed {
		// Terminal failure: surface the marketplace's status text as-is,
		// no reports are fetched.
		return result
	}

	if observed.HasErrorReport {
		text, rerr := t.channel.DownloadErrorReport(ctx, importID)
		if rerr != nil && !errors.Is(rerr, utils.ErrReportNotAvailable) {
			log.Error().Err(rerr).Str("import_id", importID).Msg("Failed to download error report")
		}
		result.ErrorReport = text
	}
	if observed.HasNewEntityReport {
		text, rerr := t.channel.DownloadNewEntityReport(ctx, importID)
		if rerr != nil && !errors.Is(rerr, utils.ErrReportNotAvailable) {
			log.Error().Err(rerr).Str("import_id", importID).Msg("Failed to download new-entity report")
		}
		result.NewEntityReport = text
	}
	return result
}

// Abandon drops imports that have been open longer than maxAge. The job's
// remote status is left as last observed; the engine never locally forces
// a terminal state.
func (t *ImportTracker) Abandon(maxAge time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ti := range t.jobs {
		if time.Since(ti.trackedAt) > maxAge {
			log.Warn().
				Str("import_id", id).
				Str("status", string(ti.job.Status)).
				Dur("age", time.Since(ti.trackedAt)).
				Msg("Giving up polling import; last observed status stands")
			delete(t.jobs, id)
		}
	}
}

// observe appends to the best-effort audit trail.
func (t *ImportTracker) observe(ctx context.Context, job *models.ImportJob) {
	if t.audit == nil {
		return
	}
	obs := &cache.ImportObservation{
		ImportID:   job.ExternalImportID,
		Channel:    job.Channel,
		Status:     job.Status,
		StatusText: job.StatusText,
		ObservedAt: time.Now(),
	}
	if err := t.audit.Record(ctx, obs); err != nil {
		log.Warn().Err(err).Str("import_id", job.ExternalImportID).Msg("Failed to record import observation")
	}
}
