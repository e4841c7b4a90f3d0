// Package progress tracks the lifecycle of every item inside a running batch
// and broadcasts each change as a self-contained download_progress event.
package progress

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/models"
)

var (
	ErrNotTracked        = errors.New("item is not tracked")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Metadata is what the fetcher learned about an item by the time the bytes
// are in.
type Metadata struct {
	Title      string
	Artist     string
	ExternalID string
}

type entry struct {
	rec        models.ProgressRecord
	finishedAt time.Time
}

// ownerShard holds one owner's records behind its own lock.
type ownerShard struct {
	mu    sync.Mutex
	items map[string]*entry
	order []string
}

// Tracker is safe for concurrent use. Records are partitioned by owner so
// batches for different owners never contend.
type Tracker struct {
	mu        sync.Mutex
	shards    map[string]*ownerShard
	retention time.Duration
	pub       events.Publisher
	now       func() time.Time
}

func NewTracker(pub events.Publisher, retention time.Duration) *Tracker {
	return &Tracker{
		shards:    make(map[string]*ownerShard),
		retention: retention,
		pub:       pub,
		now:       time.Now,
	}
}

// SetRetention changes how long terminal records are kept.
func (t *Tracker) SetRetention(d time.Duration) {
	t.mu.Lock()
	t.retention = d
	t.mu.Unlock()
}

func (t *Tracker) shard(ownerID string) *ownerShard {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shards[ownerID]
}

// mutate runs fn on the record for (owner, url) under the owner's lock and
// publishes the resulting record once.
func (t *Tracker) mutate(ownerID, url string, fn func(rec *models.ProgressRecord) error) (models.ProgressRecord, error) {
	s := t.shard(ownerID)
	if s == nil {
		return models.ProgressRecord{}, fmt.Errorf("%s: %w", url, ErrNotTracked)
	}

	s.mu.Lock()
	e, ok := s.items[url]
	if !ok {
		s.mu.Unlock()
		return models.ProgressRecord{}, fmt.Errorf("%s: %w", url, ErrNotTracked)
	}
	if e.rec.Status.Terminal() {
		st := e.rec.Status
		s.mu.Unlock()
		return models.ProgressRecord{}, fmt.Errorf("%s is %s: %w", url, st, ErrInvalidTransition)
	}
	if err := fn(&e.rec); err != nil {
		s.mu.Unlock()
		return models.ProgressRecord{}, err
	}
	now := t.now()
	e.rec.UpdatedAt = now
	if e.rec.Status.Terminal() {
		e.finishedAt = now
	}
	rec := e.rec
	// Publishing under the shard lock keeps one owner's events in transition order.
	t.pub.Publish(events.OwnerTopic(ownerID), events.DownloadProgress{Record: rec})
	s.mu.Unlock()

	return rec, nil
}

func requireStatus(rec *models.ProgressRecord, want models.Status) error {
	if rec.Status != want {
		return fmt.Errorf("%s is %s, want %s: %w", rec.URL, rec.Status, want, ErrInvalidTransition)
	}
	return nil
}

// Begin creates a pending record for (owner, url), replacing any finished one
// left over from an earlier batch.
func (t *Tracker) Begin(ownerID, url string) (models.ProgressRecord, error) {
	t.mu.Lock()
	s, ok := t.shards[ownerID]
	if !ok {
		s = &ownerShard{items: make(map[string]*entry)}
		t.shards[ownerID] = s
	}
	// Taking the shard lock before releasing the tracker lock keeps Sweep
	// from dropping the shard between lookup and insert.
	s.mu.Lock()
	t.mu.Unlock()
	defer s.mu.Unlock()

	if e, ok := s.items[url]; ok && !e.rec.Status.Terminal() {
		return models.ProgressRecord{}, fmt.Errorf("%s already in progress: %w", url, ErrInvalidTransition)
	}
	if _, ok := s.items[url]; !ok {
		s.order = append(s.order, url)
	}
	rec := models.ProgressRecord{
		OwnerID:   ownerID,
		URL:       url,
		Status:    models.StatusPending,
		UpdatedAt: t.now(),
	}
	s.items[url] = &entry{rec: rec}
	t.pub.Publish(events.OwnerTopic(ownerID), events.DownloadProgress{Record: rec})
	return rec, nil
}

// StartDownload moves a pending item to downloading.
func (t *Tracker) StartDownload(ownerID, url string) (models.ProgressRecord, error) {
	return t.mutate(ownerID, url, func(rec *models.ProgressRecord) error {
		if err := requireStatus(rec, models.StatusPending); err != nil {
			return err
		}
		rec.Status = models.StatusDownloading
		return nil
	})
}

// UpdateProgress records byte counters while downloading. Updates may arrive
// out of order; the latest call wins.
func (t *Tracker) UpdateProgress(ownerID, url string, percentage float64, downloaded, total int64) (models.ProgressRecord, error) {
	return t.mutate(ownerID, url, func(rec *models.ProgressRecord) error {
		if err := requireStatus(rec, models.StatusDownloading); err != nil {
			return err
		}
		rec.Percentage = clampPercentage(percentage)
		rec.DownloadedBytes = downloaded
		rec.TotalBytes = total
		return nil
	})
}

// StartProcessing marks the download finished and attaches what the fetcher
// learned about the item.
func (t *Tracker) StartProcessing(ownerID, url string, meta Metadata) (models.ProgressRecord, error) {
	return t.mutate(ownerID, url, func(rec *models.ProgressRecord) error {
		if err := requireStatus(rec, models.StatusDownloading); err != nil {
			return err
		}
		rec.Status = models.StatusProcessing
		rec.Percentage = 100
		if rec.TotalBytes > 0 {
			rec.DownloadedBytes = rec.TotalBytes
		}
		rec.Title = meta.Title
		rec.Artist = meta.Artist
		rec.ExternalID = meta.ExternalID
		return nil
	})
}

func (t *Tracker) Complete(ownerID, url string) (models.ProgressRecord, error) {
	return t.mutate(ownerID, url, func(rec *models.ProgressRecord) error {
		if err := requireStatus(rec, models.StatusProcessing); err != nil {
			return err
		}
		rec.Status = models.StatusCompleted
		return nil
	})
}

// Fail moves any non-terminal item to error.
func (t *Tracker) Fail(ownerID, url, message string) (models.ProgressRecord, error) {
	return t.mutate(ownerID, url, func(rec *models.ProgressRecord) error {
		rec.Status = models.StatusError
		rec.ErrorMessage = message
		return nil
	})
}

// Get returns a copy of the record for (owner, url).
func (t *Tracker) Get(ownerID, url string) (models.ProgressRecord, bool) {
	s := t.shard(ownerID)
	if s == nil {
		return models.ProgressRecord{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[url]
	if !ok {
		return models.ProgressRecord{}, false
	}
	return e.rec, true
}

// List returns owner's records in the order their batches began them.
func (t *Tracker) List(ownerID string) []models.ProgressRecord {
	s := t.shard(ownerID)
	if s == nil {
		return []models.ProgressRecord{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProgressRecord, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.items[url].rec)
	}
	return out
}

// Sweep drops terminal records older than the retention window and returns
// how many went away. Owners left with no records are forgotten.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	retention := t.retention
	owners := make([]string, 0, len(t.shards))
	for id := range t.shards {
		owners = append(owners, id)
	}
	t.mu.Unlock()
	sort.Strings(owners)

	now := t.now()
	removed := 0
	for _, id := range owners {
		s := t.shard(id)
		if s == nil {
			continue
		}
		s.mu.Lock()
		kept := s.order[:0]
		for _, url := range s.order {
			e := s.items[url]
			if e.rec.Status.Terminal() && now.Sub(e.finishedAt) >= retention {
				delete(s.items, url)
				removed++
				continue
			}
			kept = append(kept, url)
		}
		s.order = kept
		empty := len(s.items) == 0
		s.mu.Unlock()

		if empty {
			t.mu.Lock()
			// Re-check under the tracker lock: Begin may have raced in.
			s.mu.Lock()
			if len(s.items) == 0 && t.shards[id] == s {
				delete(t.shards, id)
			}
			s.mu.Unlock()
			t.mu.Unlock()
		}
	}
	return removed
}

func clampPercentage(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
