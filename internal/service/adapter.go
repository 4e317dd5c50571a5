package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/shadecraft/channelsync/internal/models"
)

// ConnectionResult reports a channel connectivity probe.
type ConnectionResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// RemoteVariant is one variant row of a remote catalog entity.
type RemoteVariant struct {
	SKU     string  `json:"sku"`
	Price   float64 `json:"price"`
	Option  string  `json:"option"`
	Barcode string  `json:"barcode,omitempty"`
}

// RemoteEntity is a marketplace listing as the channel reports it.
type RemoteEntity struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Handle   string          `json:"handle,omitempty"`
	Active   bool            `json:"active"`
	Variants []RemoteVariant `json:"variants"`
}

// ListingPayload is the engine-owned representation of a listing group
// handed to a realtime channel. Channels translate it to their wire format
// internally; untyped maps never cross this boundary.
type ListingPayload struct {
	Title    string
	Active   bool
	Variants []RemoteVariant
}

// CSVPayload is the file handed to a batch channel, already encoded by the
// channel's own encoder.
type CSVPayload struct {
	Filename string
	Header   []string
	Rows     [][]string
}

// Bytes renders the payload as CSV.
func (p *CSVPayload) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(p.Header) > 0 {
		if err := w.Write(p.Header); err != nil {
			return nil, fmt.Errorf("failed to encode csv: %w", err)
		}
	}
	for _, row := range p.Rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to encode csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

// PullFilter narrows a bulk listing pull.
type PullFilter struct {
	PageSize int
}

// RemoteEntityIterator walks a channel's listings one entity at a time,
// paginating transparently. Usage follows the sql.Rows pattern; the
// sequence is finite and restartable by calling Pull again.
type RemoteEntityIterator interface {
	Next(ctx context.Context) bool
	Entity() *RemoteEntity
	Err() error
}

// CollectRemoteEntities materializes an iterator, for callers that need a
// full slice or a count.
func CollectRemoteEntities(ctx context.Context, it RemoteEntityIterator) ([]RemoteEntity, error) {
	var out []RemoteEntity
	for it.Next(ctx) {
		out = append(out, *it.Entity())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Channel is the capability shared by every marketplace adapter.
type Channel interface {
	Code() models.ChannelCode
	TestConnection(ctx context.Context) (*ConnectionResult, error)
}

// RealtimeChannel is a marketplace whose catalog is manipulated
// synchronously per call.
type RealtimeChannel interface {
	Channel

	// FindByTitle returns the listing whose title matches exactly, nil when
	// none exists. More than one exact match is an ambiguity error: the
	// engine never guesses which duplicate to adopt.
	FindByTitle(ctx context.Context, title string) (*RemoteEntity, error)

	// GetByID fetches the current remote representation of a listing.
	GetByID(ctx context.Context, id string) (*RemoteEntity, error)

	Create(ctx context.Context, payload *ListingPayload) (*RemoteEntity, error)
	Update(ctx context.Context, id string, payload *ListingPayload) (*RemoteEntity, error)

	// Pull iterates the channel's listings, paginated transparently.
	Pull(filter PullFilter) RemoteEntityIterator
}

// BatchChannel is a marketplace fed by asynchronous CSV imports. Remote
// identity is only known after import completion, so there is no lookup
// or per-listing write surface.
type BatchChannel interface {
	Channel

	// EncodeGroups renders listing groups into this marketplace's CSV
	// import format.
	EncodeGroups(groups []models.ListingGroup) (*CSVPayload, error)

	SubmitImport(ctx context.Context, payload *CSVPayload) (*models.ImportJob, error)

	// CheckStatus refreshes import state by querying the marketplace. The
	// engine has no local authority over import state.
	CheckStatus(ctx context.Context, importID string) (*models.ImportJob, error)

	// DownloadErrorReport returns raw report text, or
	// utils.ErrReportNotAvailable.
	DownloadErrorReport(ctx context.Context, importID string) (string, error)
	DownloadNewEntityReport(ctx context.Context, importID string) (string, error)
}
