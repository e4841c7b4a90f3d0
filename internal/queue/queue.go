// Package queue holds each owner's pending download URLs and announces every
// change on the owner's topic.
package queue

import (
	"fmt"

	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/models"
	"github.com/vrsandeep/tunedl/internal/store"
	"github.com/vrsandeep/tunedl/internal/util"
)

// Queue serializes mutations per owner on top of the store. Different owners
// never wait on each other.
type Queue struct {
	store *store.Store
	pub   events.Publisher
	locks *util.KeyedMutex
}

func New(st *store.Store, pub events.Publisher) *Queue {
	return &Queue{
		store: st,
		pub:   pub,
		locks: util.NewKeyedMutex(),
	}
}

func (q *Queue) notify(ownerID string) {
	q.pub.Publish(events.OwnerTopic(ownerID), events.QueueUpdated{UserID: ownerID})
}

// Enqueue adds urls to owner's queue. Blank or malformed entries and urls
// already queued are dropped without error. It returns the urls added.
func (q *Queue) Enqueue(ownerID string, urls []string) ([]string, error) {
	seen := make(map[string]bool, len(urls))
	clean := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, ok := util.NormalizeURL(raw)
		if !ok || seen[u] {
			continue
		}
		seen[u] = true
		clean = append(clean, u)
	}

	unlock := q.locks.Lock(ownerID)
	defer unlock()

	if len(clean) == 0 {
		q.notify(ownerID)
		return []string{}, nil
	}

	added, err := q.store.AddQueueItems(ownerID, clean)
	if err != nil {
		return nil, fmt.Errorf("enqueue for %s: %w", ownerID, err)
	}
	if added == nil {
		added = []string{}
	}
	q.notify(ownerID)
	return added, nil
}

// List returns owner's queued urls, oldest first.
func (q *Queue) List(ownerID string) ([]string, error) {
	items, err := q.store.GetQueueItems(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list queue for %s: %w", ownerID, err)
	}
	urls := make([]string, 0, len(items))
	for _, it := range items {
		urls = append(urls, it.URL)
	}
	return urls, nil
}

// RemoveOne deletes a single url and reports whether it was queued.
func (q *Queue) RemoveOne(ownerID, url string) (bool, error) {
	n, err := q.Remove(ownerID, []string{url})
	return n > 0, err
}

// Remove deletes the given urls from owner's queue. An empty list clears the
// whole queue.
func (q *Queue) Remove(ownerID string, urls []string) (int, error) {
	if len(urls) == 0 {
		return q.Clear(ownerID)
	}

	trimmed := make([]string, 0, len(urls))
	for _, raw := range urls {
		if u, ok := util.NormalizeURL(raw); ok {
			trimmed = append(trimmed, u)
		}
	}

	unlock := q.locks.Lock(ownerID)
	defer unlock()

	removed, err := q.store.DeleteQueueItems(ownerID, trimmed)
	if err != nil {
		return 0, fmt.Errorf("remove from queue for %s: %w", ownerID, err)
	}
	q.notify(ownerID)
	return removed, nil
}

// Clear empties owner's queue. Items already drained by a running batch are
// not affected.
func (q *Queue) Clear(ownerID string) (int, error) {
	unlock := q.locks.Lock(ownerID)
	defer unlock()

	removed, err := q.store.ClearQueue(ownerID)
	if err != nil {
		return 0, fmt.Errorf("clear queue for %s: %w", ownerID, err)
	}
	q.notify(ownerID)
	return removed, nil
}

// DrainForProcessing atomically takes everything currently queued for owner.
// Urls enqueued afterwards land in a fresh queue for the next batch.
func (q *Queue) DrainForProcessing(ownerID string) ([]models.WorkItem, error) {
	unlock := q.locks.Lock(ownerID)
	defer unlock()

	items, err := q.store.DrainQueue(ownerID)
	if err != nil {
		return nil, fmt.Errorf("drain queue for %s: %w", ownerID, err)
	}
	if len(items) > 0 {
		q.notify(ownerID)
	}
	return items, nil
}
