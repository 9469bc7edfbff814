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

package bufpool

import (
	"github.com/yireyun/go-queue"

	"github.com/laminadb/lamina/pkg/chunkkey"
)

// evictCandidates is a bounded, lock-free FIFO of regions whose pin
// count just dropped to zero. evictLocked pops from it before falling
// back to a full touch-order scan, so a region that has sat unpinned
// the longest is usually evicted without having to walk every slab.
// Each entry carries the region's touch stamp at enqueue time so a
// dequeuing evictLocked can tell a stale hint (re-pinned, re-touched,
// or already evicted by some other path) from a still-good one.
type evictCandidates struct {
	q *queue.EsQueue
}

func newEvictCandidates(capacity int) *evictCandidates {
	return &evictCandidates{q: queue.NewQueue(uint32(capacity))}
}

func (e *evictCandidates) push(rec evictCandidate) {
	for i := 0; i < 2; i++ {
		if ok, _ := e.q.Put(rec); ok {
			return
		}
		// ring full: drop the oldest to make room for the newest.
		e.q.Get()
	}
}

// pop removes and returns the oldest staged candidate, if any. Unlike
// a full drain, entries this call doesn't consume stay queued for a
// later allocation.
func (e *evictCandidates) pop() (evictCandidate, bool) {
	v, ok, _ := e.q.Get()
	if !ok {
		return evictCandidate{}, false
	}
	rec, ok := v.(evictCandidate)
	return rec, ok
}

type evictCandidate struct {
	key   chunkkey.Key
	touch uint64
	rgn   *region
}
