package store

import (
	"database/sql"
	"time"

	"github.com/vrsandeep/tunedl/internal/models"
)

// InsertBatchRun stores the outcome of a finished batch and returns its id.
func (s *Store) InsertBatchRun(run *models.BatchRunLog) (int64, error) {
	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	res, err := s.db.Exec(`
        INSERT INTO batch_runs (owner_id, started_at, finished_at, total, success, failed, error)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, run.OwnerID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Total, run.Success, run.Failed, errMsg)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListBatchRuns returns the most recent batch runs, newest first. An empty
// ownerID lists runs for everyone.
func (s *Store) ListBatchRuns(ownerID string, limit int) ([]*models.BatchRunLog, error) {
	query := `
        SELECT id, owner_id, started_at, finished_at, total, success, failed, error
        FROM batch_runs`
	args := []any{}
	if ownerID != "" {
		query += " WHERE owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.BatchRunLog
	for rows.Next() {
		var run models.BatchRunLog
		var errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.OwnerID, &run.StartedAt, &run.FinishedAt, &run.Total, &run.Success, &run.Failed, &errMsg); err != nil {
			return nil, err
		}
		run.Error = errMsg.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// PruneBatchRuns deletes runs that finished before cutoff.
func (s *Store) PruneBatchRuns(cutoff time.Time) (int, error) {
	res, err := s.db.Exec("DELETE FROM batch_runs WHERE finished_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
