package storefront

// ShopInfo describes the connected shop, returned by the ping endpoint.
type ShopInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Plan     string `json:"plan"`
	Currency string `json:"currency"`
}

// Listing is a storefront catalog entity, the remote counterpart of one
// listing group.
type Listing struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Handle    string           `json:"handle"`
	Status    string           `json:"status"` // active / draft
	Variants  []ListingVariant `json:"variants"`
	UpdatedAt string           `json:"updatedAt"`
}

// ListingVariant is a sellable option of a listing.
type ListingVariant struct {
	ID      string  `json:"id"`
	SKU     string  `json:"sku"`
	Price   float64 `json:"price"`
	Option  string  `json:"option"`
	Barcode string  `json:"barcode,omitempty"`
}

// ListingRequest is the create/update payload for a listing.
type ListingRequest struct {
	Title    string                  `json:"title"`
	Status   string                  `json:"status"`
	Variants []ListingVariantRequest `json:"variants"`
}

// ListingVariantRequest is one variant row of a listing payload.
type ListingVariantRequest struct {
	SKU     string  `json:"sku"`
	Price   float64 `json:"price"`
	Option  string  `json:"option"`
	Barcode string  `json:"barcode,omitempty"`
}

// ListingPage is one page of a listing collection.
type ListingPage struct {
	Items      []Listing `json:"items"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
	TotalItems int       `json:"totalItems"`
}

// errorEnvelope is the storefront error response body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
