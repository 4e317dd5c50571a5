package tradegate

// AccountInfo describes the merchant account, returned by the ping endpoint.
type AccountInfo struct {
	MerchantID string `json:"merchantId"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
}

// Import is the remote state of a batch import as reported by the
// marketplace. Status values come from the marketplace verbatim and are
// mapped by the caller.
type Import struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	StatusText        string `json:"statusText,omitempty"`
	SubmittedAt       string `json:"submittedAt"`
	RowCount          int    `json:"rowCount"`
	HasErrorReport    bool   `json:"hasErrorReport"`
	HasNewItemsReport bool   `json:"hasNewItemsReport"`
}

// errorEnvelope is the tradegate error response body.
type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
