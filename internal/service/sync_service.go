package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
)

// ProductSource is the catalog read surface the orchestrator needs.
// Implemented by repository.ProductRepository.
type ProductSource interface {
	GetByIDs(ids []int) ([]models.Product, error)
	ListActive() ([]models.Product, error)
}

// GroupLocker serializes reconciliation per (product, group, channel) key.
// Implemented by cache.SyncLock.
type GroupLocker interface {
	Acquire(ctx context.Context, productID int, groupKey string, channel models.ChannelCode) (func(), error)
}

// ProductResult aggregates per-group outcomes for one product.
type ProductResult struct {
	ProductID int                `json:"productId"`
	Name      string             `json:"name"`
	Groups    []ReconcileOutcome `json:"groups"`
}

// SyncSummary is the caller-facing result of one batch sync run.
type SyncSummary struct {
	Channel   models.ChannelCode `json:"channel"`
	Products  []ProductResult    `json:"products"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Submitted int                `json:"submitted"`
	StartedAt time.Time          `json:"startedAt"`
	Duration  time.Duration      `json:"duration"`
}

// SyncService orchestrates marketplace synchronization for batches of
// products: partition, reconcile per group on a bounded worker pool, and
// aggregate results in the partitioner's deterministic order regardless of
// completion order.
type SyncService struct {
	products     ProductSource
	records      SyncRecordStore
	reconciler   *Reconciler
	locks        GroupLocker
	tracker      *ImportTracker
	groupingAttr string
	concurrency  int
}

// NewSyncService constructs a SyncService. tracker may be nil when no batch
// channel is configured.
func NewSyncService(
	products ProductSource,
	records SyncRecordStore,
	reconciler *Reconciler,
	locks GroupLocker,
	tracker *ImportTracker,
	groupingAttr string,
	concurrency int,
) *SyncService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncService{
		products:     products,
		records:      records,
		reconciler:   reconciler,
		locks:        locks,
		tracker:      tracker,
		groupingAttr: groupingAttr,
		concurrency:  concurrency,
	}
}

// SyncProducts synchronizes the given products to one channel. An empty id
// list means the full active catalog. A failure in one group never aborts
// the others; every group's outcome lands in the summary.
func (s *SyncService) SyncProducts(ctx context.Context, channel Channel, productIDs []int) (*SyncSummary, error) {
	start := time.Now()

	var products []models.Product
	var err error
	if len(productIDs) == 0 {
		products, err = s.products.ListActive()
	} else {
		products, err = s.products.GetByIDs(productIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	var summary *SyncSummary
	switch ch := channel.(type) {
	case RealtimeChannel:
		summary = s.syncRealtime(ctx, ch, products)
	case BatchChannel:
		summary = s.syncBatch(ctx, ch, products)
	default:
		return nil, fmt.Errorf("channel %s supports neither realtime nor batch sync", channel.Code())
	}

	summary.StartedAt = start
	summary.Duration = time.Since(start)
	log.Info().
		Str("channel", string(summary.Channel)).
		Int("products", len(summary.Products)).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("submitted", summary.Submitted).
		Dur("duration", summary.Duration).
		Msg("Sync run finished")
	return summary, nil
}

// syncRealtime reconciles every listing group on a bounded worker pool.
// Listing groups are independent units of work; only same-key runs contend,
// via the group lock.
func (s *SyncService) syncRealtime(ctx context.Context, channel RealtimeChannel, products []models.Product) *SyncSummary {
	summary := &SyncSummary{Channel: channel.Code()}

	type task struct {
		product int // index into summary.Products
		slot    int // index into that product's Groups
		group   models.ListingGroup
	}
	var tasks []task

	for i := range products {
		p := &products[i]
		result := ProductResult{ProductID: p.ID, Name: p.Name}
		groups, err := Partition(p, s.groupingAttr)
		if err != nil {
			result.Groups = append(result.Groups, ReconcileOutcome{
				ProductID: p.ID,
				Action:    ActionFailed,
				Detail:    utils.ErrorDetail(err),
				ErrorKind: utils.KindOf(err),
			})
			summary.Products = append(summary.Products, result)
			continue
		}
		result.Groups = make([]ReconcileOutcome, len(groups))
		summary.Products = append(summary.Products, result)
		pi := len(summary.Products) - 1
		for gi, g := range groups {
			tasks = append(tasks, task{product: pi, slot: gi, group: g})
		}
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, tk := range tasks {
		// Cancellation stops new groups; in-flight ones run to completion
		// so no record is left mid-write.
		if ctx.Err() != nil {
			summary.Products[tk.product].Groups[tk.slot] = ReconcileOutcome{
				ProductID: tk.group.ProductID,
				GroupKey:  tk.group.GroupKey,
				Title:     tk.group.Title,
				Action:    ActionFailed,
				Detail:    "canceled before reconciliation started",
				ErrorKind: utils.KindRetryable,
			}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(tk task) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := s.reconcileGroup(ctx, channel, &tk.group)
			summary.Products[tk.product].Groups[tk.slot] = *outcome
		}(tk)
	}
	wg.Wait()

	for _, pr := range summary.Products {
		for _, g := range pr.Groups {
			if g.Action == ActionFailed {
				summary.Failed++
			} else {
				summary.Succeeded++
			}
		}
	}
	return summary
}

// reconcileGroup runs one group under its key lock. The prior record is
// read inside the lock so a second run observes the first's result instead
// of racing it to a duplicate create.
func (s *SyncService) reconcileGroup(ctx context.Context, channel RealtimeChannel, group *models.ListingGroup) *ReconcileOutcome {
	release, err := s.locks.Acquire(ctx, group.ProductID, group.GroupKey, channel.Code())
	if err != nil {
		return &ReconcileOutcome{
			ProductID: group.ProductID,
			GroupKey:  group.GroupKey,
			Title:     group.Title,
			Action:    ActionFailed,
			Detail:    "could not acquire group lock: " + err.Error(),
			ErrorKind: utils.KindRetryable,
		}
	}
	defer release()

	prior, err := s.records.Get(group.ProductID, group.GroupKey, channel.Code())
	if err != nil {
		return &ReconcileOutcome{
			ProductID: group.ProductID,
			GroupKey:  group.GroupKey,
			Title:     group.Title,
			Action:    ActionFailed,
			Detail:    "failed to read sync record: " + err.Error(),
			ErrorKind: utils.KindRetryable,
		}
	}

	// Detached from caller cancellation: once a group is started its
	// adapter calls and record write finish, avoiding ambiguous sync state.
	outcome, rerr := s.reconciler.Reconcile(context.WithoutCancel(ctx), channel, group, prior)
	if rerr != nil {
		log.Warn().
			Err(rerr).
			Int("product_id", group.ProductID).
			Str("group_key", group.GroupKey).
			Str("channel", string(channel.Code())).
			Msg("Group reconciliation failed")
	}
	return outcome
}

// syncBatch partitions every product and hands all groups to the batch
// channel as a single CSV import. Group locks are taken in deterministic
// key order so overlapping runs cannot deadlock.
func (s *SyncService) syncBatch(ctx context.Context, channel BatchChannel, products []models.Product) *SyncSummary {
	summary := &SyncSummary{Channel: channel.Code()}

	var groups []models.ListingGroup
	groupSlot := map[string][2]int{}
	for i := range products {
		p := &products[i]
		result := ProductResult{ProductID: p.ID, Name: p.Name}
		pgroups, err := Partition(p, s.groupingAttr)
		if err != nil {
			result.Groups = append(result.Groups, ReconcileOutcome{
				ProductID: p.ID,
				Action:    ActionFailed,
				Detail:    utils.ErrorDetail(err),
				ErrorKind: utils.KindOf(err),
			})
			summary.Products = append(summary.Products, result)
			continue
		}
		result.Groups = make([]ReconcileOutcome, len(pgroups))
		summary.Products = append(summary.Products, result)
		pi := len(summary.Products) - 1
		for gi, g := range pgroups {
			groupSlot[groupKeyOf(&g)] = [2]int{pi, gi}
			groups = append(groups, g)
		}
	}

	markAll := func(detail string) {
		for i := range groups {
			slot := groupSlot[groupKeyOf(&groups[i])]
			summary.Products[slot[0]].Groups[slot[1]] = ReconcileOutcome{
				ProductID: groups[i].ProductID,
				GroupKey:  groups[i].GroupKey,
				Title:     groups[i].Title,
				Action:    ActionFailed,
				Detail:    detail,
				ErrorKind: utils.KindRetryable,
			}
		}
	}

	if len(groups) == 0 {
		s.countBatch(summary)
		return summary
	}
	if ctx.Err() != nil {
		markAll("canceled before import submission")
		s.countBatch(summary)
		return summary
	}

	releases, lockErr := s.lockAll(ctx, channel.Code(), groups)
	if lockErr != nil {
		markAll("could not acquire group lock: " + lockErr.Error())
		s.countBatch(summary)
		return summary
	}
	defer func() {
		for _, release := range releases {
			release()
		}
	}()

	job, outcomes, err := s.reconciler.ReconcileBatch(context.WithoutCancel(ctx), channel, groups)
	if err != nil {
		log.Warn().Err(err).Str("channel", string(channel.Code())).Msg("Batch import submission failed")
	}
	if job != nil && s.tracker != nil {
		refs := make([]GroupRef, 0, len(groups))
		for i := range groups {
			refs = append(refs, GroupRef{
				ProductID: groups[i].ProductID,
				GroupKey:  groups[i].GroupKey,
				Title:     groups[i].Title,
				SKUs:      groups[i].SKUs(),
			})
		}
		s.tracker.Track(job, refs)
	}
	for _, o := range outcomes {
		slot, ok := groupSlot[fmt.Sprintf("%d\x00%s", o.ProductID, o.GroupKey)]
		if !ok {
			continue
		}
		summary.Products[slot[0]].Groups[slot[1]] = o
	}

	s.countBatch(summary)
	return summary
}

func (s *SyncService) countBatch(summary *SyncSummary) {
	for _, pr := range summary.Products {
		for _, g := range pr.Groups {
			switch g.Action {
			case ActionFailed:
				summary.Failed++
			case ActionSubmitted:
				summary.Submitted++
			default:
				summary.Succeeded++
			}
		}
	}
}

func groupKeyOf(g *models.ListingGroup) string {
	return fmt.Sprintf("%d\x00%s", g.ProductID, g.GroupKey)
}

// lockAll acquires every group lock in sorted key order. On failure the
// already-held locks are released.
func (s *SyncService) lockAll(ctx context.Context, channel models.ChannelCode, groups []models.ListingGroup) ([]func(), error) {
	ordered := make([]models.ListingGroup, len(groups))
	copy(ordered, groups)
	sort.Slice(ordered, func(a, b int) bool {
		return groupKeyOf(&ordered[a]) < groupKeyOf(&ordered[b])
	})

	var releases []func()
	for i := range ordered {
		release, err := s.locks.Acquire(ctx, ordered[i].ProductID, ordered[i].GroupKey, channel)
		if err != nil {
			for _, r := range releases {
				r()
			}
			return nil, err
		}
		releases = append(releases, release)
	}
	return releases, nil
}

// ResolveImport folds a terminal import result back into sync records.
//
// Completion with an error report is not a full failure, and a complete
// import is not a full success: each group is confirmed independently by
// the presence of its SKU rows in the new-entity report. Groups with no
// confirmed rows stay pending with the unconfirmed SKUs named in the
// detail; the engine surfaces the ambiguity to operators rather than
// guessing.
func (s *SyncService) ResolveImport(ctx context.Context, res *ImportResult) {
	now := time.Now()

	if res.Job.Status == models.ImportStatusFailed {
		detail := "import " + res.Job.ExternalImportID + " failed"
		if res.Job.StatusText != "" {
			detail += ": " + res.Job.StatusText
		}
		for _, ref := range res.Groups {
			s.upsertResolved(&ref, res.Job.Channel, models.SyncStatusFailed, nil, detail, now)
		}
		return
	}

	remoteBySKU := parseNewEntityReport(res.NewEntityReport)
	for _, ref := range res.Groups {
		var remoteID string
		var unconfirmed []string
		conflict := false
		for _, sku := range ref.SKUs {
			id, ok := remoteBySKU[sku]
			if !ok || id == "" {
				unconfirmed = append(unconfirmed, sku)
				continue
			}
			if remoteID == "" {
				remoteID = id
			} else if remoteID != id {
				conflict = true
			}
		}

		switch {
		case conflict:
			detail := fmt.Sprintf("import %s reported conflicting remote ids for group variants", res.Job.ExternalImportID)
			s.upsertResolved(&ref, res.Job.Channel, models.SyncStatusPending, nil, detail, now)
		case len(unconfirmed) == 0 && remoteID != "":
			s.upsertResolved(&ref, res.Job.Channel, models.SyncStatusSynced, &remoteID, "", now)
		default:
			detail := fmt.Sprintf("import %s left SKUs unconfirmed: %s",
				res.Job.ExternalImportID, strings.Join(unconfirmed, ", "))
			if res.Job.HasErrorReport {
				detail += " (error report available)"
			}
			var idPtr *string
			if remoteID != "" {
				idPtr = &remoteID
			}
			s.upsertResolved(&ref, res.Job.Channel, models.SyncStatusPending, idPtr, detail, now)
		}
	}
}

func (s *SyncService) upsertResolved(ref *GroupRef, channel models.ChannelCode, status models.SyncStatus, remoteID *string, detail string, now time.Time) {
	rec := &models.SyncRecord{
		ProductID:      ref.ProductID,
		GroupKey:       ref.GroupKey,
		Channel:        channel,
		RemoteEntityID: remoteID,
		Status:         status,
	}
	if status == models.SyncStatusSynced {
		rec.LastSyncedAt = &now
	}
	if detail != "" {
		rec.LastError = &detail
	}
	if prior, err := s.records.Get(ref.ProductID, ref.GroupKey, channel); err == nil && prior != nil {
		if rec.RemoteEntityID == nil {
			rec.RemoteEntityID = prior.RemoteEntityID
		}
		rec.RemoteHandle = prior.RemoteHandle
		if rec.LastSyncedAt == nil {
			rec.LastSyncedAt = prior.LastSyncedAt
		}
	}
	if err := s.records.Upsert(rec); err != nil {
		log.Error().Err(err).
			Int("product_id", ref.ProductID).
			Str("group_key", ref.GroupKey).
			Msg("Failed to persist resolved sync record")
	}
}

// parseNewEntityReport extracts sku → remote id pairs from the raw report.
// Only the first two columns are read; anything else the marketplace adds
// is ignored. Rows that are not valid CSV are skipped, not fatal.
func parseNewEntityReport(text string) map[string]string {
	out := map[string]string{}
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	first := true
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if len(fields) < 2 {
			continue
		}
		sku := strings.TrimSpace(fields[0])
		id := strings.TrimSpace(fields[1])
		if first && strings.EqualFold(sku, "sku") {
			first = false
			continue
		}
		first = false
		if sku != "" {
			out[sku] = id
		}
	}
	return out
}
