package store

import (
	"database/sql"
	"time"

	"github.com/vrsandeep/tunedl/internal/models"
)

// AddQueueItems inserts urls for owner, skipping any already queued.
// It returns the urls that were actually inserted, in input order.
func (s *Store) AddQueueItems(ownerID string, urls []string) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
        INSERT OR IGNORE INTO queue_items (owner_id, url, created_at)
        VALUES (?, ?, ?)
    `)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now()
	var added []string
	for _, u := range urls {
		res, err := stmt.Exec(ownerID, u, now)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, u)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// GetQueueItems returns owner's queue, oldest first.
func (s *Store) GetQueueItems(ownerID string) ([]models.WorkItem, error) {
	return queryQueueItems(s.db, ownerID)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryQueueItems(q queryer, ownerID string) ([]models.WorkItem, error) {
	rows, err := q.Query(`
        SELECT owner_id, url, created_at
        FROM queue_items WHERE owner_id = ? ORDER BY id ASC
    `, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.WorkItem
	for rows.Next() {
		var item models.WorkItem
		if err := rows.Scan(&item.OwnerID, &item.URL, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteQueueItems removes the given urls from owner's queue and reports how
// many rows went away.
func (s *Store) DeleteQueueItems(ownerID string, urls []string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM queue_items WHERE owner_id = ? AND url = ?")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	removed := 0
	for _, u := range urls {
		res, err := stmt.Exec(ownerID, u)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// ClearQueue deletes every item in owner's queue.
func (s *Store) ClearQueue(ownerID string) (int, error) {
	res, err := s.db.Exec("DELETE FROM queue_items WHERE owner_id = ?", ownerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DrainQueue reads and deletes owner's queue in a single transaction.
func (s *Store) DrainQueue(ownerID string) ([]models.WorkItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	items, err := queryQueueItems(tx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	if _, err := tx.Exec("DELETE FROM queue_items WHERE owner_id = ?", ownerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return items, nil
}

// CountQueueItems returns the number of queued items across all owners.
func (s *Store) CountQueueItems() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM queue_items").Scan(&n)
	return n, err
}
