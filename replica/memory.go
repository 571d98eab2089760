package replica

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const shardCount = 32

// shard guards the rows of the videos hashed onto it. Rows of unrelated
// videos live in different shards and never contend on the same lock.
type shard struct {
	mu     sync.RWMutex
	videos map[int64]map[string]Row
}

// MemoryStore is the default in-process Store. It keeps no state across
// restarts.
type MemoryStore struct {
	shards [shardCount]*shard
	closed atomic.Bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{videos: make(map[int64]map[string]Row)}
	}
	return s
}

func (s *MemoryStore) shardFor(videoID int64) *shard {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(videoID))
	h := fnv.New64a()
	h.Write(buf[:])
	return s.shards[h.Sum64()%shardCount]
}

func (s *MemoryStore) checkOpen() error {
	if s.closed.Load() {
		return fmt.Errorf("memory store closed: %w", ErrStorage)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, videoID int64, replicaID string) (Row, bool, error) {
	if err := s.checkOpen(); err != nil {
		return Row{}, false, err
	}
	sh := s.shardFor(videoID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	row, ok := sh.videos[videoID][replicaID]
	return row, ok, nil
}

func (s *MemoryStore) UpsertIfGreater(ctx context.Context, row Row) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	sh := s.shardFor(row.VideoID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rows := sh.videos[row.VideoID]
	if rows == nil {
		rows = make(map[string]Row)
		sh.videos[row.VideoID] = rows
	}
	current, exists := rows[row.ReplicaID]
	if exists && row.Count <= current.Count {
		return false, nil
	}
	rows[row.ReplicaID] = row
	return true, nil
}

func (s *MemoryStore) ListForVideo(ctx context.Context, videoID int64) ([]Row, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	sh := s.shardFor(videoID)
	sh.mu.RLock()
	rows := make([]Row, 0, len(sh.videos[videoID]))
	for _, row := range sh.videos[videoID] {
		rows = append(rows, row)
	}
	sh.mu.RUnlock()

	SortRows(rows)
	return rows, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) ([]Row, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var rows []Row
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, videoRows := range sh.videos {
			for _, row := range videoRows {
				rows = append(rows, row)
			}
		}
		sh.mu.RUnlock()
	}
	SortRows(rows)
	return rows, nil
}

// Close makes every later call fail with ErrStorage.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
