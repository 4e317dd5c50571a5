package models

import "time"

// ChannelCode identifies a target marketplace channel.
type ChannelCode string

const (
	ChannelStorefront ChannelCode = "storefront"
	ChannelTradegate  ChannelCode = "tradegate"
)

// SyncStatus enumerates sync record states.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncRecord is the persisted idempotency row for one listing group on one
// channel, keyed by (product_id, group_key, channel). Created on the first
// reconciliation attempt, updated on every subsequent attempt, never
// deleted by the engine: stale rows are a signal, not garbage.
type SyncRecord struct {
	ID             int         `db:"id" json:"id"`
	ProductID      int         `db:"product_id" json:"productId"`
	GroupKey       string      `db:"group_key" json:"groupKey"`
	Channel        ChannelCode `db:"channel" json:"channel"`
	RemoteEntityID *string     `db:"remote_entity_id" json:"remoteEntityId,omitempty"`
	RemoteHandle   *string     `db:"remote_handle" json:"remoteHandle,omitempty"`
	Status         SyncStatus  `db:"status" json:"status"`
	LastSyncedAt   *time.Time  `db:"last_synced_at" json:"lastSyncedAt,omitempty"`
	LastError      *string     `db:"last_error" json:"lastError,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"-"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updatedAt"`
}

// HasRemoteEntity reports whether a remote identity is known for this row.
func (r *SyncRecord) HasRemoteEntity() bool {
	return r.RemoteEntityID != nil && *r.RemoteEntityID != ""
}
