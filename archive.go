package lcdielectrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	sweepsBucket = []byte("sweeps")

	ErrSweepNotFound = errors.New("sweep not found in archive")
)

// SweepSummary is the list view of an archived sweep.
type SweepSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Complete   bool      `json:"complete"`
	Samples    int       `json:"samples"`
}

// Archive keeps every exported sweep in a bolt file keyed by sweep id.
type Archive struct {
	db *bbolt.DB
}

func OpenArchive(path string) (*Archive, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sweepsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Export stores rec, replacing an earlier save of the same sweep.
func (a *Archive) Export(ctx context.Context, rec SweepRecord) error {
	if rec.ID == "" {
		return errors.New("sweep record has no id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sweepsBucket).Put([]byte(rec.ID), data)
	})
}

// ListSweeps returns summaries oldest first.
func (a *Archive) ListSweeps() ([]SweepSummary, error) {
	var out []SweepSummary
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sweepsBucket).ForEach(func(k, v []byte) error {
			var rec SweepRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode sweep %s: %w", k, err)
			}
			sum := SweepSummary{
				ID:         rec.ID,
				StartedAt:  rec.StartedAt,
				FinishedAt: rec.FinishedAt,
				Complete:   rec.Complete,
			}
			if rec.Results != nil {
				sum.Samples = rec.Results.Samples()
			}
			out = append(out, sum)
			return nil
		})
	})
	return out, err
}

func (a *Archive) LoadSweep(id string) (SweepRecord, error) {
	var rec SweepRecord
	err := a.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(sweepsBucket).Get([]byte(id))
		if v == nil {
			return ErrSweepNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

func (a *Archive) Close() error {
	return a.db.Close()
}
