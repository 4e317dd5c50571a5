package service

import (
	"context"
	"errors"
	"net"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
	"github.com/shadecraft/channelsync/pkg/storefront"
)

// StorefrontChannel adapts the storefront REST client to the realtime
// channel capability.
type StorefrontChannel struct {
	client *storefront.Client
}

// NewStorefrontChannel creates a StorefrontChannel over an existing client.
func NewStorefrontChannel(client *storefront.Client) *StorefrontChannel {
	return &StorefrontChannel{client: client}
}

// Code returns the channel code.
func (c *StorefrontChannel) Code() models.ChannelCode {
	return models.ChannelStorefront
}

// TestConnection probes the storefront API with the configured credentials.
func (c *StorefrontChannel) TestConnection(ctx context.Context) (*ConnectionResult, error) {
	info, err := c.client.Ping(ctx)
	if err != nil {
		return &ConnectionResult{OK: false, Detail: err.Error()}, classifyStorefrontErr("storefront.ping", err)
	}
	return &ConnectionResult{OK: true, Detail: "connected to " + info.Domain}, nil
}

// FindByTitle returns the listing with an exactly matching title, nil when
// none exists. Two or more exact matches mean a previous sync left
// duplicates behind; that is surfaced as an ambiguity, never guessed away.
func (c *StorefrontChannel) FindByTitle(ctx context.Context, title string) (*RemoteEntity, error) {
	listings, err := c.client.SearchByTitle(ctx, title)
	if err != nil {
		return nil, classifyStorefrontErr("storefront.findByTitle", err)
	}

	var matches []storefront.Listing
	for _, l := range listings {
		// The platform search is substring-based; accept exact titles only.
		if l.Title == title {
			matches = append(matches, l)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return fromListing(&matches[0]), nil
	default:
		return nil, utils.NewChannelError(utils.KindAmbiguousMatch, "storefront.findByTitle",
			"multiple listings titled "+title, utils.ErrAmbiguousRemoteMatch)
	}
}

// GetByID fetches the current remote representation of a listing.
func (c *StorefrontChannel) GetByID(ctx context.Context, id string) (*RemoteEntity, error) {
	listing, err := c.client.GetListing(ctx, id)
	if err != nil {
		return nil, classifyStorefrontErr("storefront.get", err)
	}
	return fromListing(listing), nil
}

// Create creates a listing from the payload.
func (c *StorefrontChannel) Create(ctx context.Context, payload *ListingPayload) (*RemoteEntity, error) {
	listing, err := c.client.CreateListing(ctx, toListingRequest(payload))
	if err != nil {
		return nil, classifyStorefrontErr("storefront.create", err)
	}
	return fromListing(listing), nil
}

// Update replaces the engine-owned fields of an existing listing.
func (c *StorefrontChannel) Update(ctx context.Context, id string, payload *ListingPayload) (*RemoteEntity, error) {
	listing, err := c.client.UpdateListing(ctx, id, toListingRequest(payload))
	if err != nil {
		return nil, classifyStorefrontErr("storefront.update", err)
	}
	return fromListing(listing), nil
}

// Pull iterates all listings, fetching pages lazily.
func (c *StorefrontChannel) Pull(filter PullFilter) RemoteEntityIterator {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &storefrontIterator{client: c.client, pageSize: pageSize, page: 1}
}

// storefrontIterator pages through the listing collection.
type storefrontIterator struct {
	client   *storefront.Client
	pageSize int
	page     int
	buf      []storefront.Listing
	idx      int
	done     bool
	err      error
	current  *RemoteEntity
}

func (it *storefrontIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for it.idx >= len(it.buf) {
		if it.done {
			return false
		}
		page, err := it.client.ListListings(ctx, it.page, it.pageSize)
		if err != nil {
			it.err = classifyStorefrontErr("storefront.pull", err)
			return false
		}
		it.buf = page.Items
		it.idx = 0
		it.page++
		if page.Page >= page.TotalPages || len(page.Items) == 0 {
			it.done = true
		}
		if len(page.Items) == 0 {
			return false
		}
	}
	it.current = fromListing(&it.buf[it.idx])
	it.idx++
	return true
}

func (it *storefrontIterator) Entity() *RemoteEntity { return it.current }

func (it *storefrontIterator) Err() error { return it.err }

// fromListing converts the wire listing to the engine representation.
func fromListing(l *storefront.Listing) *RemoteEntity {
	entity := &RemoteEntity{
		ID:     l.ID,
		Title:  l.Title,
		Handle: l.Handle,
		Active: l.Status == "active",
	}
	for _, v := range l.Variants {
		entity.Variants = append(entity.Variants, RemoteVariant{
			SKU:     v.SKU,
			Price:   v.Price,
			Option:  v.Option,
			Barcode: v.Barcode,
		})
	}
	return entity
}

// toListingRequest converts the engine payload to the wire format.
func toListingRequest(p *ListingPayload) *storefront.ListingRequest {
	status := "draft"
	if p.Active {
		status = "active"
	}
	req := &storefront.ListingRequest{Title: p.Title, Status: status}
	for _, v := range p.Variants {
		req.Variants = append(req.Variants, storefront.ListingVariantRequest{
			SKU:     v.SKU,
			Price:   v.Price,
			Option:  v.Option,
			Barcode: v.Barcode,
		})
	}
	return req
}

// classifyStorefrontErr maps client errors onto the failure taxonomy.
// Timeouts, 5xx and rate limits are retryable; auth and transport failures
// are connection errors; remaining 4xx is payload validation.
func classifyStorefrontErr(op string, err error) error {
	var apiErr *storefront.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return utils.NewChannelError(utils.KindConnection, op, apiErr.Message, err)
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return utils.NewChannelError(utils.KindRetryable, op, apiErr.Message, err)
		default:
			return utils.NewChannelError(utils.KindValidation, op, apiErr.Message, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.NewChannelError(utils.KindRetryable, op, "timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return utils.NewChannelError(utils.KindRetryable, op, "timeout", err)
	}
	return utils.NewChannelError(utils.KindConnection, op, "", err)
}
