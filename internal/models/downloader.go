package models

import "time"

// WorkItem is a single URL waiting in an owner's download queue.
type WorkItem struct {
	OwnerID   string    `json:"owner_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// ItemResult is the per-item outcome reported in a batch result.
type ItemResult struct {
	URL    string `json:"url"`
	Status Status `json:"status"`
	Title  string `json:"title,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult is the aggregate carried by a download_complete event.
type BatchResult struct {
	Total   int          `json:"total"`
	Success int          `json:"success"`
	Failed  int          `json:"failed"`
	Items   []ItemResult `json:"items"`
}

// BatchRunLog is the persisted record of a finished batch.
type BatchRunLog struct {
	ID         int64     `json:"id"`
	OwnerID    string    `json:"owner_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"` // set when the batch itself could not run
}
