package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/service"
	"github.com/shadecraft/channelsync/internal/utils"
)

// stubBatch answers every status probe with processing and counts calls.
type stubBatch struct {
	mu         sync.Mutex
	checkCalls int
}

func (b *stubBatch) Code() models.ChannelCode { return models.ChannelTradegate }

func (b *stubBatch) TestConnection(ctx context.Context) (*service.ConnectionResult, error) {
	return &service.ConnectionResult{OK: true}, nil
}

func (b *stubBatch) EncodeGroups(groups []models.ListingGroup) (*service.CSVPayload, error) {
	return &service.CSVPayload{}, nil
}

func (b *stubBatch) SubmitImport(ctx context.Context, payload *service.CSVPayload) (*models.ImportJob, error) {
	return &models.ImportJob{ExternalImportID: "imp-1", Channel: models.ChannelTradegate}, nil
}

func (b *stubBatch) CheckStatus(ctx context.Context, importID string) (*models.ImportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkCalls++
	return &models.ImportJob{
		ExternalImportID: importID,
		Channel:          models.ChannelTradegate,
		Status:           models.ImportStatusProcessing,
	}, nil
}

func (b *stubBatch) DownloadErrorReport(ctx context.Context, importID string) (string, error) {
	return "", utils.ErrReportNotAvailable
}

func (b *stubBatch) DownloadNewEntityReport(ctx context.Context, importID string) (string, error) {
	return "", utils.ErrReportNotAvailable
}

func (b *stubBatch) checks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkCalls
}

func TestImportPollWorkerProbesOnStart(t *testing.T) {
	batch := &stubBatch{}
	tracker := service.NewImportTracker(batch, nil)
	tracker.Track(&models.ImportJob{
		ExternalImportID: "imp-1",
		Channel:          models.ChannelTradegate,
		Status:           models.ImportStatusSubmitted,
		SubmittedAt:      time.Now(),
	}, nil)

	// Interval far beyond the test runtime: only the startup run can probe.
	w := NewImportPollWorker(tracker, nil, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return batch.checks() == 1 },
		time.Second, 10*time.Millisecond, "a fresh import must be probed before the first tick")

	cancel()
	<-done
	assert.Equal(t, 1, batch.checks())
}
