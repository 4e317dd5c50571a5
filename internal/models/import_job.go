package models

import "time"

// ImportStatus enumerates batch import states as observed from the remote
// marketplace. The engine has no local authority over these transitions;
// they are driven exclusively by status polling.
type ImportStatus string

const (
	ImportStatusSubmitted  ImportStatus = "submitted"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusComplete   ImportStatus = "complete"
	ImportStatusFailed     ImportStatus = "failed"
	// ImportStatusUnknown is returned when a status probe cannot classify
	// the remote answer. Scheduled like processing, reported distinctly.
	ImportStatusUnknown ImportStatus = "unknown"
)

// Terminal reports whether the status admits no further transitions.
func (s ImportStatus) Terminal() bool {
	return s == ImportStatusComplete || s == ImportStatusFailed
}

// ImportJob represents one batch-import submission to a batch channel.
type ImportJob struct {
	ExternalImportID   string       `json:"externalImportId"`
	Channel            ChannelCode  `json:"channel"`
	SubmittedAt        time.Time    `json:"submittedAt"`
	Status             ImportStatus `json:"status"`
	StatusText         string       `json:"statusText,omitempty"`
	HasErrorReport     bool         `json:"hasErrorReport"`
	HasNewEntityReport bool         `json:"hasNewEntityReport"`
}
