package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shadecraft/channelsync/internal/models"
)

// ImportObservation is one recorded status probe of a batch import.
type ImportObservation struct {
	ImportID   string              `json:"importId"`
	Channel    models.ChannelCode  `json:"channel"`
	Status     models.ImportStatus `json:"status"`
	StatusText string              `json:"statusText,omitempty"`
	ObservedAt time.Time           `json:"observedAt"`
}

// ImportAudit keeps a best-effort trail of import job observations in Redis.
// The trail exists for operator diagnostics and is not required to survive
// beyond the audit TTL; the durable outcome lives in sync_records.
type ImportAudit struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewImportAudit creates an ImportAudit with a 24h trail per import.
func NewImportAudit(redis *RedisClient) *ImportAudit {
	return &ImportAudit{redis: redis, ttl: 24 * time.Hour}
}

func auditKey(importID string) string {
	return fmt.Sprintf("importaudit:%s", importID)
}

// Record appends an observation to the import's trail. Failures are
// returned for logging but must never abort the sync flow.
func (a *ImportAudit) Record(ctx context.Context, obs *ImportObservation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal import observation: %w", err)
	}
	return a.redis.RPush(ctx, auditKey(obs.ImportID), string(data), a.ttl)
}

// Trail returns all recorded observations for an import, oldest first.
func (a *ImportAudit) Trail(ctx context.Context, importID string) ([]ImportObservation, error) {
	raw, err := a.redis.LRange(ctx, auditKey(importID), 0, -1)
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]ImportObservation, 0, len(raw))
	for _, item := range raw {
		var obs ImportObservation
		if err := json.Unmarshal([]byte(item), &obs); err != nil {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}
