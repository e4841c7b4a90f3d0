package models

import "time"

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ProgressRecord is the live state of one item inside a running batch.
// Every broadcast carries the whole record so clients never need a prior event.
type ProgressRecord struct {
	OwnerID         string    `json:"owner_id"`
	URL             string    `json:"url"`
	Status          Status    `json:"status"`
	Title           string    `json:"title,omitempty"`
	Artist          string    `json:"artist,omitempty"`
	ExternalID      string    `json:"id,omitempty"`
	Percentage      float64   `json:"percentage"`
	DownloadedBytes int64     `json:"downloaded_bytes"`
	TotalBytes      int64     `json:"total_bytes"`
	ErrorMessage    string    `json:"error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
