package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// History operations

// AppendHistory inserts a record at the head of the history and evicts the
// oldest records beyond max, all in one transaction. It returns the evicted IDs.
func (db *Database) AppendHistory(record *HistoryRecord, max int) ([]string, error) {
	var evicted []string

	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []*HistoryRecord
		if err := db.store.TxFind(tx, &existing, nil); err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}

		var maxSeq uint64
		for _, r := range existing {
			if r.Seq > maxSeq {
				maxSeq = r.Seq
			}
		}
		record.Seq = maxSeq + 1

		if err := db.store.TxInsert(tx, record.ID, record); err != nil {
			return fmt.Errorf("failed to insert history record: %w", err)
		}

		overflow := len(existing) + 1 - max
		if max <= 0 || overflow <= 0 {
			return nil
		}

		// Oldest first
		sort.Slice(existing, func(i, j int) bool {
			return existing[i].Seq < existing[j].Seq
		})
		for _, r := range existing[:overflow] {
			if err := db.store.TxDelete(tx, r.ID, &HistoryRecord{}); err != nil {
				return fmt.Errorf("failed to evict history record %s: %w", r.ID, err)
			}
			evicted = append(evicted, r.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return evicted, nil
}

// GetHistory retrieves history records matching the filter, most recent first
func (db *Database) GetHistory(filter HistoryFilter) ([]*HistoryRecord, error) {
	var records []*HistoryRecord
	if err := db.store.Find(&records, historyQuery(filter)); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq > records[j].Seq
	})
	return records, nil
}

// historyQuery converts a filter into a bolthold query, nil meaning all records
func historyQuery(f HistoryFilter) *bolthold.Query {
	var q *bolthold.Query
	field := func(name string) *bolthold.Criterion {
		if q == nil {
			return bolthold.Where(name)
		}
		return q.And(name)
	}

	if f.Kind != "" {
		q = field("Kind").Eq(f.Kind)
	}
	if f.Author != "" {
		q = field("PostAuthor").Eq(f.Author)
	}
	if f.SinceMs > 0 {
		q = field("DownloadedAtMs").Ge(f.SinceMs)
	}
	return q
}

// DeleteHistory deletes a history record by ID. Unknown IDs are ignored.
func (db *Database) DeleteHistory(id string) error {
	err := db.store.Delete(id, &HistoryRecord{})
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil
	}
	return err
}

// ClearHistory deletes every history record
func (db *Database) ClearHistory() error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var records []*HistoryRecord
		if err := db.store.TxFind(tx, &records, nil); err != nil {
			return err
		}
		for _, r := range records {
			if err := db.store.TxDelete(tx, r.ID, &HistoryRecord{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Job operations

// CreateJob persists a new job
func (db *Database) CreateJob(job *Job) error {
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	return db.store.Insert(job.ID, job)
}

// UpdateJob updates an existing job
func (db *Database) UpdateJob(job *Job) error {
	job.UpdatedAt = time.Now()
	return db.store.Update(job.ID, job)
}

// GetJobByID retrieves a job by ID
func (db *Database) GetJobByID(id string) (*Job, error) {
	var job Job
	if err := db.store.Get(id, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobsByState retrieves all jobs in a state, oldest first
func (db *Database) GetJobsByState(state JobState) ([]*Job, error) {
	var jobs []*Job
	if err := db.store.Find(&jobs, bolthold.Where("State").Eq(state)); err != nil {
		return nil, err
	}
	sortJobs(jobs)
	return jobs, nil
}

// GetDueJobs retrieves enqueued jobs whose next attempt is not in the future
func (db *Database) GetDueJobs(now time.Time) ([]*Job, error) {
	jobs, err := db.GetJobsByState(JobStateEnqueued)
	if err != nil {
		return nil, err
	}

	due := jobs[:0]
	for _, job := range jobs {
		if !job.NextAttemptAt.After(now) {
			due = append(due, job)
		}
	}
	return due, nil
}

// GetAllJobs retrieves all jobs, oldest first
func (db *Database) GetAllJobs() ([]*Job, error) {
	var jobs []*Job
	if err := db.store.Find(&jobs, nil); err != nil {
		return nil, err
	}
	sortJobs(jobs)
	return jobs, nil
}

func sortJobs(jobs []*Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
