package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
)

// fakeBatch is a scriptable batch channel. CheckStatus walks the statuses
// slice and sticks on the last entry.
type fakeBatch struct {
	mu       sync.Mutex
	statuses []models.ImportJob
	statusAt int

	submitErr    error
	checkErr     error
	errorReport  string
	newReport    string
	submitCalls  int
	checkCalls   int
	errDownloads int
	newDownloads int
}

func (f *fakeBatch) Code() models.ChannelCode { return models.ChannelTradegate }

func (f *fakeBatch) TestConnection(ctx context.Context) (*ConnectionResult, error) {
	return &ConnectionResult{OK: true}, nil
}

func (f *fakeBatch) EncodeGroups(groups []models.ListingGroup) (*CSVPayload, error) {
	payload := &CSVPayload{
		Filename: "listings-test.csv",
		Header:   []string{"listing_title", "group_key", "sku", "price", "option", "barcode", "active"},
	}
	for _, g := range groups {
		for _, v := range g.Variants {
			payload.Rows = append(payload.Rows, []string{g.Title, g.GroupKey, v.SKU})
		}
	}
	return payload, nil
}

func (f *fakeBatch) SubmitImport(ctx context.Context, payload *CSVPayload) (*models.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.ImportJob{
		ExternalImportID: "imp-1",
		Channel:          models.ChannelTradegate,
		SubmittedAt:      time.Now(),
		Status:           models.ImportStatusSubmitted,
	}, nil
}

func (f *fakeBatch) CheckStatus(ctx context.Context, importID string) (*models.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	job := f.statuses[f.statusAt]
	if f.statusAt < len(f.statuses)-1 {
		f.statusAt++
	}
	job.ExternalImportID = importID
	job.Channel = models.ChannelTradegate
	return &job, nil
}

func (f *fakeBatch) DownloadErrorReport(ctx context.Context, importID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errDownloads++
	if f.errorReport == "" {
		return "", utils.ErrReportNotAvailable
	}
	return f.errorReport, nil
}

func (f *fakeBatch) DownloadNewEntityReport(ctx context.Context, importID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newDownloads++
	if f.newReport == "" {
		return "", utils.ErrReportNotAvailable
	}
	return f.newReport, nil
}

func submittedJob() *models.ImportJob {
	return &models.ImportJob{
		ExternalImportID: "imp-1",
		Channel:          models.ChannelTradegate,
		SubmittedAt:      time.Now(),
		Status:           models.ImportStatusSubmitted,
	}
}

func navyRef() GroupRef {
	return GroupRef{
		ProductID: 42,
		GroupKey:  "Navy",
		Title:     "Roller Blind - Navy",
		SKUs:      []string{"RB-NAVY-S", "RB-NAVY-L"},
	}
}

func TestImportTracker(t *testing.T) {
	ctx := context.Background()

	t.Run("non-terminal statuses keep the job open", func(t *testing.T) {
		ch := &fakeBatch{statuses: []models.ImportJob{
			{Status: models.ImportStatusSubmitted},
			{Status: models.ImportStatusProcessing},
		}}
		tr := NewImportTracker(ch, nil)
		tr.Track(submittedJob(), []GroupRef{navyRef()})

		require.Empty(t, tr.Poll(ctx))
		require.Empty(t, tr.Poll(ctx))

		open := tr.OpenJobs()
		require.Len(t, open, 1)
		assert.Equal(t, models.ImportStatusProcessing, open[0].Status)
	})

	t.Run("unknown status keeps polling but is visible to operators", func(t *testing.T) {
		ch := &fakeBatch{statuses: []models.ImportJob{
			{Status: models.ImportStatusUnknown, StatusText: "WEIRD_STATE"},
		}}
		tr := NewImportTracker(ch, nil)
		tr.Track(submittedJob(), []GroupRef{navyRef()})

		require.Empty(t, tr.Poll(ctx))

		open := tr.OpenJobs()
		require.Len(t, open, 1)
		assert.Equal(t, models.ImportStatusUnknown, open[0].Status)
		assert.Equal(t, "WEIRD_STATE", open[0].StatusText)

		// Still polled on the next tick.
		require.Empty(t, tr.Poll(ctx))
		assert.Equal(t, 2, ch.checkCalls)
	})

	t.Run("complete import yields a single result with reports", func(t *testing.T) {
		ch := &fakeBatch{
			statuses: []models.ImportJob{
				{Status: models.ImportStatusComplete, HasErrorReport: true, HasNewEntityReport: true},
			},
			errorReport: "sku,error\nRB-NAVY-L,price missing\n",
			newReport:   "sku,remote_id\nRB-NAVY-S,ent-1\n",
		}
		tr := NewImportTracker(ch, nil)
		tr.Track(submittedJob(), []GroupRef{navyRef()})

		results := tr.Poll(ctx)
		require.Len(t, results, 1)
		res := results[0]
		assert.Equal(t, models.ImportStatusComplete, res.Job.Status)
		assert.Equal(t, []GroupRef{navyRef()}, res.Groups)
		assert.Contains(t, res.ErrorReport, "price missing")
		assert.Contains(t, res.NewEntityReport, "ent-1")

		// Terminal jobs leave the registry; reports are fetched exactly once.
		assert.Empty(t, tr.OpenJobs())
		require.Empty(t, tr.Poll(ctx))
		assert.Equal(t, 1, ch.errDownloads)
		assert.Equal(t, 1, ch.newDownloads)
	})

	t.Run("failed import yields a result without fetching reports", func(t *testing.T) {
		ch := &fakeBatch{statuses: []models.ImportJob{
			{Status: models.ImportStatusFailed, StatusText: "malformed header", HasErrorReport: true},
		}}
		tr := NewImportTracker(ch, nil)
		tr.Track(submittedJob(), []GroupRef{navyRef()})

		results := tr.Poll(ctx)
		require.Len(t, results, 1)
		assert.Equal(t, models.ImportStatusFailed, results[0].Job.Status)
		assert.Equal(t, "malformed header", results[0].Job.StatusText)
		assert.Zero(t, ch.errDownloads)
		assert.Zero(t, ch.newDownloads)
		assert.Empty(t, tr.OpenJobs())
	})

	t.Run("probe failures are not transitions", func(t *testing.T) {
		ch := &fakeBatch{
			statuses: []models.ImportJob{{Status: models.ImportStatusProcessing}},
			checkErr: utils.NewChannelError(utils.KindRetryable, "tradegate.status", "timeout", nil),
		}
		tr := NewImportTracker(ch, nil)
		tr.Track(submittedJob(), []GroupRef{navyRef()})

		require.Empty(t, tr.Poll(ctx))
		open := tr.OpenJobs()
		require.Len(t, open, 1)
		assert.Equal(t, models.ImportStatusSubmitted, open[0].Status, "a failed probe must not advance the state machine")
	})

	t.Run("abandon drops stale imports without forcing a terminal status", func(t *testing.T) {
		ch := &fakeBatch{statuses: []models.ImportJob{{Status: models.ImportStatusProcessing}}}
		tr := NewImportTracker(ch, nil)
		tr.Track(submittedJob(), []GroupRef{navyRef()})

		tr.Abandon(time.Hour)
		assert.Len(t, tr.OpenJobs(), 1)

		tr.Abandon(0)
		assert.Empty(t, tr.OpenJobs())
	})
}
