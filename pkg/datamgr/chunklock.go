// Copyright 2021 - 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datamgr

import (
	"sync"

	"github.com/laminadb/lamina/pkg/chunkkey"
)

// chunkLock is a refcounted, named mutex: one per live chunk, removed
// from its shard once nothing references it anymore. This replaces the
// original's monotonically growing global chunk-mutex map.
type chunkLock struct {
	sync.RWMutex
	refs int
}

// lockTable is the sharded chunk-mutex table: each shard is a
// Mutex-guarded map from ChunkKey to its chunkLock, and a key's shard
// is chunkkey.Key.Shard(n).
type lockTable struct {
	shards []*lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[chunkkey.Key]*chunkLock
}

func newLockTable(n int) *lockTable {
	if n < 1 {
		n = 1
	}
	t := &lockTable{shards: make([]*lockShard, n)}
	for i := range t.shards {
		t.shards[i] = &lockShard{locks: make(map[chunkkey.Key]*chunkLock)}
	}
	return t
}

func (t *lockTable) shardFor(key chunkkey.Key) *lockShard {
	return t.shards[key.Shard(len(t.shards))]
}

// Acquire returns key's chunkLock, creating it with refcount 1 if
// absent, or incrementing the refcount of the existing one. The
// caller must call Release exactly once when done referencing it,
// in addition to whatever RLock/Lock calls it makes on the returned
// lock itself.
func (t *lockTable) Acquire(key chunkkey.Key) *chunkLock {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &chunkLock{}
		s.locks[key] = l
	}
	l.refs++
	return l
}

// Release drops one reference to key's chunkLock, removing it from
// the shard once the refcount reaches zero.
func (t *lockTable) Release(key chunkkey.Key) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(s.locks, key)
	}
}

// Drop removes every lock whose key has the given prefix, regardless
// of refcount, for use by removeTableRelatedDS after every chunk under
// the prefix has already been deleted.
func (t *lockTable) Drop(prefix []int32) {
	for _, s := range t.shards {
		s.mu.Lock()
		for k := range s.locks {
			if k.HasPrefix(prefix) {
				delete(s.locks, k)
			}
		}
		s.mu.Unlock()
	}
}
