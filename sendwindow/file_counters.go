package sendwindow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

// FileCounterStore keeps the counters in a JSON file next to a lock
// file. The flock serializes check-and-increment across processes; the
// write itself is atomic so a crash never leaves a torn file.
type FileCounterStore struct {
	path string
	lock *flock.Flock
}

func NewFileCounterStore(path string) *FileCounterStore {
	return &FileCounterStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *FileCounterStore) Snapshot(ctx context.Context, date string) (Counters, error) {
	if err := s.lock.Lock(); err != nil {
		return Counters{}, fmt.Errorf("acquire counters lock: %w", err)
	}
	defer s.lock.Unlock()

	return s.read(date)
}

func (s *FileCounterStore) Consume(ctx context.Context, date, inbox string, limits Limits, dry bool) (bool, Reason, error) {
	if err := s.lock.Lock(); err != nil {
		return false, ReasonError, fmt.Errorf("acquire counters lock: %w", err)
	}
	defer s.lock.Unlock()

	counters, err := s.read(date)
	if err != nil {
		return false, ReasonError, err
	}

	if limits.Daily != nil && counters.Total >= *limits.Daily {
		return false, ReasonDailyLimit, nil
	}
	if inbox != "" && limits.PerInbox != nil && counters.PerInbox[inbox] >= *limits.PerInbox {
		return false, ReasonPerInboxLimit, nil
	}

	if dry {
		return true, ReasonNone, nil
	}

	counters.Total++
	if inbox != "" {
		counters.PerInbox[inbox]++
	}
	if err := s.write(counters); err != nil {
		return false, ReasonError, err
	}
	return true, ReasonNone, nil
}

// read loads the counters file, resetting to zero when the stored date
// is not the requested one.
func (s *FileCounterStore) read(date string) (Counters, error) {
	fresh := Counters{Date: date, PerInbox: map[string]int{}}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return fresh, nil
	}
	if err != nil {
		return Counters{}, fmt.Errorf("read counters file: %w", err)
	}

	var counters Counters
	if err := json.Unmarshal(data, &counters); err != nil {
		return Counters{}, fmt.Errorf("parse counters file: %w", err)
	}
	if counters.Date != date {
		return fresh, nil
	}
	if counters.PerInbox == nil {
		counters.PerInbox = map[string]int{}
	}
	return counters, nil
}

func (s *FileCounterStore) write(counters Counters) error {
	data, err := json.MarshalIndent(counters, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write counters file: %w", err)
	}
	return nil
}
