// Package journal keeps a local write-ahead log of every oracle verdict,
// independent of the database audit trail. It is best-effort: the trading
// flow continues even when a journal write fails.
package journal

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/coinpilot/coinpilot/internal/domain"
)

const (
	DefaultDir   = "./wal/decisions"
	segmentLimit = 1000
	maxSegments  = 10

	decisionKeyPrefix = "decision_"
)

// DecisionEvent is one journaled oracle verdict.
type DecisionEvent struct {
	Time     time.Time       `json:"time"`
	Asset    string          `json:"asset"`
	Decision domain.Decision `json:"decision"`
}

// Store persists decision events in a WAL.
type Store struct {
	wal *gowal.Wal
	mu  sync.Mutex
}

// NewStore initializes a WAL-backed decision journal.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init decision journal WAL")
	}

	return &Store{wal: wal}, nil
}

// Record appends one oracle verdict to the journal.
func (s *Store) Record(asset string, decision *domain.Decision) error {
	if s == nil || s.wal == nil {
		return errors.New("decision journal is not initialized")
	}
	if asset == "" {
		return errors.New("decision event asset is required")
	}

	payload, err := json.Marshal(DecisionEvent{
		Time:     time.Now().UTC(),
		Asset:    asset,
		Decision: *decision,
	})
	if err != nil {
		return errors.Wrap(err, "marshal decision event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, decisionKeyPrefix+asset, payload)
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("decision journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
