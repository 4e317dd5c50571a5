package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
)

// ReconcileAction is the action taken for one listing group.
type ReconcileAction string

const (
	ActionCreated ReconcileAction = "created"
	ActionUpdated ReconcileAction = "updated"
	ActionSkipped ReconcileAction = "skipped"
	ActionFailed  ReconcileAction = "failed"
	// ActionSubmitted marks a group handed to a batch import; the final
	// created/failed resolution arrives with the import reports.
	ActionSubmitted ReconcileAction = "submitted"
)

// ReconcileOutcome is the result of reconciling one listing group.
type ReconcileOutcome struct {
	ProductID int             `json:"productId"`
	GroupKey  string          `json:"groupKey"`
	Title     string          `json:"title"`
	Action    ReconcileAction `json:"action"`
	RemoteID  string          `json:"remoteId,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	ErrorKind utils.ErrorKind `json:"errorKind,omitempty"`
}

// SyncRecordStore is the persistence surface the reconciler needs.
// Implemented by repository.SyncRecordRepository.
type SyncRecordStore interface {
	Get(productID int, groupKey string, channel models.ChannelCode) (*models.SyncRecord, error)
	Upsert(rec *models.SyncRecord) error
}

// Reconciler decides create/update/skip for listing groups and executes the
// decision against a channel. Every attempt, including failures, lands in
// the sync record store so retries have full history.
type Reconciler struct {
	store SyncRecordStore
}

// NewReconciler constructs a Reconciler.
func NewReconciler(store SyncRecordStore) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile processes one listing group against a realtime channel.
//
// With a usable prior record (known remote id, status synced) it fetches
// the remote listing and diffs the engine-owned fields; identical listings
// are skipped without a write, which keeps re-runs from triggering remote
// re-indexing. Without one it falls back to an exact-title lookup to
// recover from lost local state, and only creates when that finds nothing.
// The returned outcome is always non-nil; the error carries the taxonomy
// for callers that retry.
func (r *Reconciler) Reconcile(ctx context.Context, channel RealtimeChannel, group *models.ListingGroup, prior *models.SyncRecord) (*ReconcileOutcome, error) {
	payload := payloadForGroup(group)

	if prior != nil && prior.HasRemoteEntity() && prior.Status == models.SyncStatusSynced {
		return r.reconcileKnown(ctx, channel, group, payload, prior)
	}

	// No usable prior state. A previous untracked run may still have
	// created the listing; match on exact title before creating.
	match, err := channel.FindByTitle(ctx, group.Title)
	if err != nil {
		return r.recordFailure(channel.Code(), group, prior, err)
	}
	if match != nil {
		log.Info().
			Int("product_id", group.ProductID).
			Str("group_key", group.GroupKey).
			Str("remote_id", match.ID).
			Msg("Adopted untracked remote listing by title")
		return r.updateOrSkip(ctx, channel, group, payload, match, nil, "adopted by title match")
	}

	created, err := channel.Create(ctx, payload)
	if err != nil {
		return r.recordFailure(channel.Code(), group, prior, err)
	}
	r.recordSuccess(channel.Code(), group, created)
	return &ReconcileOutcome{
		ProductID: group.ProductID,
		GroupKey:  group.GroupKey,
		Title:     group.Title,
		Action:    ActionCreated,
		RemoteID:  created.ID,
	}, nil
}

// reconcileKnown runs the update path for a group with a known remote id.
func (r *Reconciler) reconcileKnown(ctx context.Context, channel RealtimeChannel, group *models.ListingGroup, payload *ListingPayload, prior *models.SyncRecord) (*ReconcileOutcome, error) {
	remote, err := channel.GetByID(ctx, *prior.RemoteEntityID)
	if err != nil {
		return r.recordFailure(channel.Code(), group, prior, err)
	}
	return r.updateOrSkip(ctx, channel, group, payload, remote, prior, "")
}

// updateOrSkip diffs the remote listing against the payload and updates
// only when an engine-owned field differs. prior may be nil on the title
// adoption path; a failed update then records the adopted remote identity.
func (r *Reconciler) updateOrSkip(ctx context.Context, channel RealtimeChannel, group *models.ListingGroup, payload *ListingPayload, remote *RemoteEntity, prior *models.SyncRecord, detail string) (*ReconcileOutcome, error) {
	if !listingDiffers(remote, payload) {
		r.recordSuccess(channel.Code(), group, remote)
		return &ReconcileOutcome{
			ProductID: group.ProductID,
			GroupKey:  group.GroupKey,
			Title:     group.Title,
			Action:    ActionSkipped,
			RemoteID:  remote.ID,
			Detail:    detail,
		}, nil
	}

	updated, err := channel.Update(ctx, remote.ID, payload)
	if err != nil {
		if prior == nil {
			prior = &models.SyncRecord{
				ProductID:      group.ProductID,
				GroupKey:       group.GroupKey,
				Channel:        channel.Code(),
				RemoteEntityID: &remote.ID,
				Status:         models.SyncStatusSynced,
			}
			if remote.Handle != "" {
				prior.RemoteHandle = &remote.Handle
			}
		}
		return r.recordFailure(channel.Code(), group, prior, err)
	}
	r.recordSuccess(channel.Code(), group, updated)
	return &ReconcileOutcome{
		ProductID: group.ProductID,
		GroupKey:  group.GroupKey,
		Title:     group.Title,
		Action:    ActionUpdated,
		RemoteID:  updated.ID,
		Detail:    detail,
	}, nil
}

// ReconcileBatch hands a set of listing groups to a batch channel as one
// CSV import. Remote identity is unknown until the import completes, so
// each group's record goes to pending and the import tracker resolves it
// later from the reports.
func (r *Reconciler) ReconcileBatch(ctx context.Context, channel BatchChannel, groups []models.ListingGroup) (*models.ImportJob, []ReconcileOutcome, error) {
	payload, err := channel.EncodeGroups(groups)
	if err != nil {
		return nil, r.failAll(channel.Code(), groups, err), err
	}

	job, err := channel.SubmitImport(ctx, payload)
	if err != nil {
		return nil, r.failAll(channel.Code(), groups, err), err
	}

	now := time.Now()
	outcomes := make([]ReconcileOutcome, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		rec := &models.SyncRecord{
			ProductID:    g.ProductID,
			GroupKey:     g.GroupKey,
			Channel:      channel.Code(),
			Status:       models.SyncStatusPending,
			LastSyncedAt: &now,
		}
		if prior, perr := r.store.Get(g.ProductID, g.GroupKey, channel.Code()); perr == nil && prior != nil {
			// Keep a previously confirmed remote identity through resubmits.
			rec.RemoteEntityID = prior.RemoteEntityID
			rec.RemoteHandle = prior.RemoteHandle
		}
		if uerr := r.store.Upsert(rec); uerr != nil {
			log.Error().Err(uerr).Int("product_id", g.ProductID).Str("group_key", g.GroupKey).
				Msg("Failed to persist pending sync record")
		}
		outcomes = append(outcomes, ReconcileOutcome{
			ProductID: g.ProductID,
			GroupKey:  g.GroupKey,
			Title:     g.Title,
			Action:    ActionSubmitted,
			Detail:    "import " + job.ExternalImportID,
		})
	}
	return job, outcomes, nil
}

// recordSuccess upserts a synced record for the group.
func (r *Reconciler) recordSuccess(channel models.ChannelCode, group *models.ListingGroup, remote *RemoteEntity) {
	now := time.Now()
	rec := &models.SyncRecord{
		ProductID:      group.ProductID,
		GroupKey:       group.GroupKey,
		Channel:        channel,
		RemoteEntityID: &remote.ID,
		Status:         models.SyncStatusSynced,
		LastSyncedAt:   &now,
	}
	if remote.Handle != "" {
		rec.RemoteHandle = &remote.Handle
	}
	if err := r.store.Upsert(rec); err != nil {
		log.Error().Err(err).Int("product_id", group.ProductID).Str("group_key", group.GroupKey).
			Msg("Failed to persist sync record")
	}
}

// recordFailure writes the failed attempt and builds the failed outcome.
// Retryable failures keep the prior status and remote id so a retry still
// sees the last known-good identity; fatal failures flip the status to
// failed but never clear a known remote id.
func (r *Reconciler) recordFailure(channel models.ChannelCode, group *models.ListingGroup, prior *models.SyncRecord, cause error) (*ReconcileOutcome, error) {
	kind := utils.KindOf(cause)
	detail := utils.ErrorDetail(cause)

	rec := &models.SyncRecord{
		ProductID: group.ProductID,
		GroupKey:  group.GroupKey,
		Channel:   channel,
		Status:    models.SyncStatusFailed,
		LastError: &detail,
	}
	if prior != nil {
		rec.RemoteEntityID = prior.RemoteEntityID
		rec.RemoteHandle = prior.RemoteHandle
		rec.LastSyncedAt = prior.LastSyncedAt
		if kind == utils.KindRetryable {
			rec.Status = prior.Status
		}
	} else if kind == utils.KindRetryable {
		rec.Status = models.SyncStatusPending
	}
	if err := r.store.Upsert(rec); err != nil {
		log.Error().Err(err).Int("product_id", group.ProductID).Str("group_key", group.GroupKey).
			Msg("Failed to persist failed sync record")
	}

	outcome := &ReconcileOutcome{
		ProductID: group.ProductID,
		GroupKey:  group.GroupKey,
		Title:     group.Title,
		Action:    ActionFailed,
		Detail:    detail,
		ErrorKind: kind,
	}
	if rec.RemoteEntityID != nil {
		outcome.RemoteID = *rec.RemoteEntityID
	}
	return outcome, cause
}

// failAll records a submission-level failure against every group of a
// batch import.
func (r *Reconciler) failAll(channel models.ChannelCode, groups []models.ListingGroup, cause error) []ReconcileOutcome {
	outcomes := make([]ReconcileOutcome, 0, len(groups))
	for i := range groups {
		prior, _ := r.store.Get(groups[i].ProductID, groups[i].GroupKey, channel)
		outcome, _ := r.recordFailure(channel, &groups[i], prior, cause)
		outcomes = append(outcomes, *outcome)
	}
	return outcomes
}

// payloadForGroup builds the engine-owned payload for a group. The option
// value is the variant's size so multi-size color groups stay addressable.
func payloadForGroup(group *models.ListingGroup) *ListingPayload {
	payload := &ListingPayload{Title: group.Title, Active: group.Active}
	for _, v := range group.Variants {
		payload.Variants = append(payload.Variants, RemoteVariant{
			SKU:     v.SKU,
			Price:   v.Price,
			Option:  v.Attribute("size"),
			Barcode: v.BarcodeValue(),
		})
	}
	return payload
}

// listingDiffers shallow-diffs the engine-owned fields: title, active flag,
// and per-variant price and option keyed by SKU. Fields the marketplace
// owns (handles, timestamps, media) are ignored.
func listingDiffers(remote *RemoteEntity, payload *ListingPayload) bool {
	if remote.Title != payload.Title || remote.Active != payload.Active {
		return true
	}
	if len(remote.Variants) != len(payload.Variants) {
		return true
	}
	bySKU := make(map[string]RemoteVariant, len(remote.Variants))
	for _, v := range remote.Variants {
		bySKU[v.SKU] = v
	}
	for _, want := range payload.Variants {
		got, ok := bySKU[want.SKU]
		if !ok {
			return true
		}
		if got.Price != want.Price || got.Option != want.Option {
			return true
		}
	}
	return false
}
