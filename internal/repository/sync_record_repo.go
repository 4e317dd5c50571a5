package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/shadecraft/channelsync/internal/models"
)

// SyncRecordRepository handles data access for sync_records, the persisted
// idempotency state of the engine.
type SyncRecordRepository struct {
	db *sqlx.DB
}

// NewSyncRecordRepository creates a new SyncRecordRepository.
func NewSyncRecordRepository(db *sqlx.DB) *SyncRecordRepository {
	return &SyncRecordRepository{db: db}
}

// Get returns the record for a (product, group, channel) key, or nil when
// the group was never reconciled.
func (r *SyncRecordRepository) Get(productID int, groupKey string, channel models.ChannelCode) (*models.SyncRecord, error) {
	const q = `SELECT * FROM sync_records WHERE product_id = $1 AND group_key = $2 AND channel = $3 LIMIT 1`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var rec models.SyncRecord
	if err := stmt.Get(&rec, productID, groupKey, channel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Upsert inserts or updates the record keyed by (product_id, group_key,
// channel). Re-running synchronization for the same group always lands on
// the same row; the engine never inserts a second row for a key.
func (r *SyncRecordRepository) Upsert(rec *models.SyncRecord) error {
	const q = `
        INSERT INTO sync_records (product_id, group_key, channel, remote_entity_id, remote_handle, status, last_synced_at, last_error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (product_id, group_key, channel) DO UPDATE SET
            remote_entity_id = EXCLUDED.remote_entity_id,
            remote_handle = EXCLUDED.remote_handle,
            status = EXCLUDED.status,
            last_synced_at = EXCLUDED.last_synced_at,
            last_error = EXCLUDED.last_error,
            updated_at = NOW()
        RETURNING id, created_at, updated_at`

	stmt, err := r.db.Preparex(q)
	if err != nil {
		return err
	}
	defer stmt.Close()
	return stmt.QueryRowx(
		rec.ProductID,
		rec.GroupKey,
		rec.Channel,
		rec.RemoteEntityID,
		rec.RemoteHandle,
		rec.Status,
		rec.LastSyncedAt,
		rec.LastError,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// ListByProduct returns all records for a product across channels, in
// stable group order.
func (r *SyncRecordRepository) ListByProduct(productID int) ([]models.SyncRecord, error) {
	const q = `SELECT * FROM sync_records WHERE product_id = $1 ORDER BY channel, group_key`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var recs []models.SyncRecord
	if err := stmt.Select(&recs, productID); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListRecent returns the most recently synced records for a channel.
func (r *SyncRecordRepository) ListRecent(channel models.ChannelCode, limit int) ([]models.SyncRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
        SELECT * FROM sync_records
        WHERE channel = $1 AND last_synced_at IS NOT NULL
        ORDER BY last_synced_at DESC
        LIMIT $2`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var recs []models.SyncRecord
	if err := stmt.Select(&recs, channel, limit); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListPendingByChannel returns records still awaiting confirmation on a
// channel (batch imports not yet completed).
func (r *SyncRecordRepository) ListPendingByChannel(channel models.ChannelCode) ([]models.SyncRecord, error) {
	const q = `SELECT * FROM sync_records WHERE channel = $1 AND status = 'pending' ORDER BY product_id, group_key`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var recs []models.SyncRecord
	if err := stmt.Select(&recs, channel); err != nil {
		return nil, err
	}
	return recs, nil
}
