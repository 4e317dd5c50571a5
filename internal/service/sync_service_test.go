package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadecraft/channelsync/internal/models"
)

// memProducts is an in-memory ProductSource.
type memProducts struct {
	products []models.Product
}

func (m *memProducts) GetByIDs(ids []int) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		for _, p := range m.products {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *memProducts) ListActive() ([]models.Product, error) {
	var out []models.Product
	for _, p := range m.products {
		if p.Status == models.ProductStatusActive {
			out = append(out, p)
		}
	}
	return out, nil
}

// memLocker serializes acquisitions per key.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) Acquire(ctx context.Context, productID int, groupKey string, channel models.ChannelCode) (func(), error) {
	key := storeKey(productID, groupKey, channel)
	for {
		l.mu.Lock()
		if !l.held[key] {
			l.held[key] = true
			l.mu.Unlock()
			return func() {
				l.mu.Lock()
				delete(l.held, key)
				l.mu.Unlock()
			}, nil
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

func twoProducts() []models.Product {
	roller := *rollerBlind()
	curtain := models.Product{
		ID:     43,
		Name:   "Linen Curtain",
		Status: models.ProductStatusActive,
		Variants: []models.Variant{
			{ID: 10, ProductID: 43, SKU: "LC-SAND", Price: 89.00,
				Attributes: models.AttributeMap{"color": "Sand"}},
		},
	}
	return []models.Product{roller, curtain}
}

func newTestSyncService(products []models.Product, store *memStore, batch BatchChannel, concurrency int) (*SyncService, *ImportTracker) {
	var tracker *ImportTracker
	if batch != nil {
		tracker = NewImportTracker(batch, nil)
	}
	svc := NewSyncService(
		&memProducts{products: products},
		store,
		NewReconciler(store),
		newMemLocker(),
		tracker,
		"color",
		concurrency,
	)
	return svc, tracker
}

func TestSyncProductsRealtime(t *testing.T) {
	ctx := context.Background()

	t.Run("creates every group and reports in catalog order", func(t *testing.T) {
		store := newMemStore()
		ch := newFakeRealtime()
		svc, _ := newTestSyncService(twoProducts(), store, nil, 4)

		summary, err := svc.SyncProducts(ctx, ch, nil)
		require.NoError(t, err)
		require.Len(t, summary.Products, 2)

		assert.Equal(t, 42, summary.Products[0].ProductID)
		assert.Equal(t, 43, summary.Products[1].ProductID)
		require.Len(t, summary.Products[0].Groups, 2)
		assert.Equal(t, "Navy", summary.Products[0].Groups[0].GroupKey)
		assert.Equal(t, "Teal", summary.Products[0].Groups[1].GroupKey)
		for _, pr := range summary.Products {
			for _, g := range pr.Groups {
				assert.Equal(t, ActionCreated, g.Action)
			}
		}
		assert.Equal(t, 3, summary.Succeeded)
		assert.Zero(t, summary.Failed)
		assert.Equal(t, 3, ch.createCalls)
		assert.Equal(t, 3, store.count())
	})

	t.Run("result order is stable regardless of completion order", func(t *testing.T) {
		store := newMemStore()
		ch := newFakeRealtime()
		svc, _ := newTestSyncService(twoProducts(), store, nil, 3)

		first, err := svc.SyncProducts(ctx, ch, nil)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := svc.SyncProducts(ctx, ch, nil)
			require.NoError(t, err)
			require.Len(t, again.Products, len(first.Products))
			for pi := range again.Products {
				assert.Equal(t, first.Products[pi].ProductID, again.Products[pi].ProductID)
				for gi := range again.Products[pi].Groups {
					assert.Equal(t, first.Products[pi].Groups[gi].GroupKey, again.Products[pi].Groups[gi].GroupKey)
				}
			}
		}
	})

	t.Run("concurrent runs converge on a single remote listing per group", func(t *testing.T) {
		store := newMemStore()
		ch := newFakeRealtime()
		svc, _ := newTestSyncService(twoProducts(), store, nil, 4)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.SyncProducts(ctx, ch, []int{42, 43})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		// 3 distinct groups, so at most 3 creates across all runs; later
		// runs must skip via the record written under the group lock.
		assert.Equal(t, 3, ch.createCalls)
		assert.Equal(t, 3, store.count())
	})

	t.Run("cancellation stops groups that have not started", func(t *testing.T) {
		store := newMemStore()
		ch := newFakeRealtime()
		svc, _ := newTestSyncService(twoProducts(), store, nil, 2)

		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		summary, err := svc.SyncProducts(canceled, ch, nil)
		require.NoError(t, err)
		for _, pr := range summary.Products {
			for _, g := range pr.Groups {
				assert.Equal(t, ActionFailed, g.Action)
				assert.Contains(t, g.Detail, "canceled")
			}
		}
		assert.Zero(t, ch.createCalls)
	})

	t.Run("partition failure surfaces without aborting other products", func(t *testing.T) {
		store := newMemStore()
		ch := newFakeRealtime()
		products := twoProducts()
		products = append(products, models.Product{ID: 44, Name: "Empty", Status: models.ProductStatusActive})
		svc, _ := newTestSyncService(products, store, nil, 2)

		summary, err := svc.SyncProducts(ctx, ch, []int{42, 43, 44})
		require.NoError(t, err)
		require.Len(t, summary.Products, 3)
		require.Len(t, summary.Products[2].Groups, 1)
		assert.Equal(t, ActionFailed, summary.Products[2].Groups[0].Action)
		assert.Equal(t, 3, summary.Succeeded)
		assert.Equal(t, 1, summary.Failed)
	})
}

func TestSyncProductsBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("all groups ride one import and go pending", func(t *testing.T) {
		store := newMemStore()
		ch := &fakeBatch{statuses: []models.ImportJob{{Status: models.ImportStatusProcessing}}}
		svc, tracker := newTestSyncService(twoProducts(), store, ch, 4)

		summary, err := svc.SyncProducts(ctx, ch, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, ch.submitCalls)
		assert.Equal(t, 3, summary.Submitted)
		assert.Zero(t, summary.Failed)

		for _, pr := range summary.Products {
			for _, g := range pr.Groups {
				assert.Equal(t, ActionSubmitted, g.Action)
				assert.Contains(t, g.Detail, "imp-1")
			}
		}

		rec, _ := store.Get(42, "Navy", models.ChannelTradegate)
		require.NotNil(t, rec)
		assert.Equal(t, models.SyncStatusPending, rec.Status)

		open := tracker.OpenJobs()
		require.Len(t, open, 1)
		assert.Equal(t, "imp-1", open[0].ExternalImportID)
	})

	t.Run("submission failure fails every group", func(t *testing.T) {
		store := newMemStore()
		ch := &fakeBatch{submitErr: errors.New("tradegate down")}
		svc, tracker := newTestSyncService(twoProducts(), store, ch, 4)

		summary, err := svc.SyncProducts(ctx, ch, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.Failed)
		assert.Empty(t, tracker.OpenJobs())
	})
}

func TestParseNewEntityReport(t *testing.T) {
	t.Run("reads quoted fields and crlf line endings", func(t *testing.T) {
		report := "sku,entity_id,note\r\n" +
			"RB-NAVY-S,ent-1,ok\r\n" +
			"\"RB,COMMA\",ent-2,\"has, comma\"\r\n" +
			"RB-TEAL-S,\"ent-3\"\r\n"
		assert.Equal(t, map[string]string{
			"RB-NAVY-S": "ent-1",
			"RB,COMMA":  "ent-2",
			"RB-TEAL-S": "ent-3",
		}, parseNewEntityReport(report))
	})

	t.Run("skips malformed and short rows", func(t *testing.T) {
		report := "sku,entity_id\nonly-one-column\nRB-NAVY-S,ent-1\n\"unterminated,ent-9\n"
		assert.Equal(t, map[string]string{"RB-NAVY-S": "ent-1"}, parseNewEntityReport(report))
	})
}

func TestResolveImport(t *testing.T) {
	ctx := context.Background()

	refs := []GroupRef{
		navyRef(),
		{ProductID: 42, GroupKey: "Teal", Title: "Roller Blind - Teal", SKUs: []string{"RB-TEAL-S"}},
	}

	t.Run("confirmed groups go synced, unconfirmed stay pending", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestSyncService(nil, store, nil, 1)

		svc.ResolveImport(ctx, &ImportResult{
			Job: &models.ImportJob{
				ExternalImportID: "imp-9",
				Channel:          models.ChannelTradegate,
				Status:           models.ImportStatusComplete,
				HasErrorReport:   true,
			},
			Groups:          refs,
			NewEntityReport: "sku,remote_id\nRB-NAVY-S,ent-5\nRB-NAVY-L,ent-5\n",
		})

		navy, _ := store.Get(42, "Navy", models.ChannelTradegate)
		require.NotNil(t, navy)
		assert.Equal(t, models.SyncStatusSynced, navy.Status)
		require.NotNil(t, navy.RemoteEntityID)
		assert.Equal(t, "ent-5", *navy.RemoteEntityID)
		assert.NotNil(t, navy.LastSyncedAt)

		teal, _ := store.Get(42, "Teal", models.ChannelTradegate)
		require.NotNil(t, teal)
		assert.Equal(t, models.SyncStatusPending, teal.Status)
		require.NotNil(t, teal.LastError)
		assert.Contains(t, *teal.LastError, "RB-TEAL-S")
		assert.Contains(t, *teal.LastError, "error report available")
	})

	t.Run("failed import fails every group with the status text", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestSyncService(nil, store, nil, 1)

		svc.ResolveImport(ctx, &ImportResult{
			Job: &models.ImportJob{
				ExternalImportID: "imp-9",
				Channel:          models.ChannelTradegate,
				Status:           models.ImportStatusFailed,
				StatusText:       "malformed header",
			},
			Groups: refs,
		})

		for _, ref := range refs {
			rec, _ := store.Get(ref.ProductID, ref.GroupKey, models.ChannelTradegate)
			require.NotNil(t, rec)
			assert.Equal(t, models.SyncStatusFailed, rec.Status)
			require.NotNil(t, rec.LastError)
			assert.Contains(t, *rec.LastError, "malformed header")
		}
	})

	t.Run("failed resubmit keeps a previously confirmed remote id", func(t *testing.T) {
		store := newMemStore()
		remoteID := "ent-5"
		require.NoError(t, store.Upsert(&models.SyncRecord{
			ProductID:      42,
			GroupKey:       "Navy",
			Channel:        models.ChannelTradegate,
			RemoteEntityID: &remoteID,
			Status:         models.SyncStatusSynced,
		}))
		svc, _ := newTestSyncService(nil, store, nil, 1)

		svc.ResolveImport(ctx, &ImportResult{
			Job: &models.ImportJob{
				ExternalImportID: "imp-10",
				Channel:          models.ChannelTradegate,
				Status:           models.ImportStatusFailed,
				StatusText:       "rejected",
			},
			Groups: refs[:1],
		})

		rec, _ := store.Get(42, "Navy", models.ChannelTradegate)
		require.NotNil(t, rec)
		assert.Equal(t, models.SyncStatusFailed, rec.Status)
		require.NotNil(t, rec.RemoteEntityID)
		assert.Equal(t, "ent-5", *rec.RemoteEntityID)
	})

	t.Run("conflicting remote ids inside one group stay pending", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestSyncService(nil, store, nil, 1)

		svc.ResolveImport(ctx, &ImportResult{
			Job: &models.ImportJob{
				ExternalImportID: "imp-11",
				Channel:          models.ChannelTradegate,
				Status:           models.ImportStatusComplete,
			},
			Groups:          refs[:1],
			NewEntityReport: "sku,remote_id\nRB-NAVY-S,ent-5\nRB-NAVY-L,ent-6\n",
		})

		rec, _ := store.Get(42, "Navy", models.ChannelTradegate)
		require.NotNil(t, rec)
		assert.Equal(t, models.SyncStatusPending, rec.Status)
		require.NotNil(t, rec.LastError)
		assert.Contains(t, *rec.LastError, "conflicting remote ids")
	})
}
