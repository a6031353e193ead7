// Package history persists one summary per completed run in a bbolt
// file, so past runs can be listed without keeping their logs around.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const bucketRuns = "runs"

// Summary is what survives of a run after its result log is archived
// or deleted.
type Summary struct {
	ID          string         `json:"id"`
	Time        time.Time      `json:"time"`
	URL         string         `json:"url"`
	Concurrency int            `json:"concurrency"`
	Repeat      int            `json:"repeat"`
	Requests    uint64         `json:"requests"`
	HardErrors  uint64         `json:"hard_errors"`
	StatusTally map[int]uint64 `json:"status_tally"`
	P50Ms       float64        `json:"p50_ms"`
	P99Ms       float64        `json:"p99_ms"`
	DurationSec float64        `json:"duration_sec"`
}

type Store struct {
	db *bbolt.DB
}

// DefaultPath is ~/.qreplay/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".qreplay")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening history db %q", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save assigns an ID if missing and stores the summary under a
// time-ordered key so a reverse cursor walk lists newest first.
func (s *Store) Save(item Summary) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Time.IsZero() {
		item.Time = time.Now()
	}
	key := fmt.Sprintf("%s/%s", item.Time.UTC().Format(time.RFC3339Nano), item.ID)

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// List returns up to limit summaries, newest first. A limit <= 0
// means all.
func (s *Store) List(limit int) ([]Summary, error) {
	var items []Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var item Summary
			if err := json.Unmarshal(v, &item); err != nil {
				return errors.Wrapf(err, "decoding history entry %q", k)
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}
