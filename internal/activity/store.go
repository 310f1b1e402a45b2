package activity

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxSize          = 1000
	DefaultCleanupThreshold = 0.8
)

// Store keeps activity records up to a fixed capacity. Once occupancy passes
// maxSize*cleanupThreshold, the least recently used half is dropped.
type Store struct {
	mu        sync.Mutex
	lru       *simplelru.LRU[int64, *Record]
	maxSize   int
	threshold float64
}

func NewStore(maxSize int, cleanupThreshold float64) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if cleanupThreshold <= 0 || cleanupThreshold > 1 {
		cleanupThreshold = DefaultCleanupThreshold
	}

	// One spare slot so a threshold of 1 still reaches the half eviction
	// instead of the LRU dropping a single entry.
	lru, err := simplelru.NewLRU[int64, *Record](maxSize+1, nil)
	if err != nil {
		// Only returned for a non-positive size, which is excluded above.
		panic(err)
	}

	return &Store{
		lru:       lru,
		maxSize:   maxSize,
		threshold: cleanupThreshold,
	}
}

func (s *Store) Add(userID int64, record *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lru.Add(userID, record)
	s.cleanupLocked()
}

func (s *Store) Get(userID int64) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Get(userID)
}

// GetOrCreate returns the user's record, creating it if needed, with the
// names refreshed.
func (s *Store) GetOrCreate(userID int64, displayName, handle string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.lru.Get(userID)
	if !ok {
		record = &Record{UserID: userID}
		s.lru.Add(userID, record)
		s.cleanupLocked()
	}
	record.DisplayName = displayName
	record.Handle = handle
	return record
}

func (s *Store) Remove(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Remove(userID)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Len()
}

func (s *Store) cleanupLocked() {
	if float64(s.lru.Len()) <= float64(s.maxSize)*s.threshold {
		return
	}

	toRemove := s.lru.Len() / 2
	for i := 0; i < toRemove; i++ {
		s.lru.RemoveOldest()
	}

	logrus.WithField("component", "activity_store").Debugf(
		"evicted %d records, %d left",
		toRemove,
		s.lru.Len(),
	)
}
