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

package chunkkey

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/axiomhq/hyperloglog"
)

// Metadata is the per-chunk summary the SQL layer uses for pruning. It
// is maintained by the disk-level manager and never mutated by cache
// levels above it.
type Metadata struct {
	RowCount int64
	Min      []byte
	Max      []byte

	// NullMap has bit i set when row i of the chunk is null. A nil
	// NullMap means "no nulls observed."
	NullMap *roaring.Bitmap

	// DistinctEstimator is an approximate distinct-value sketch over
	// the chunk's values, folded in on every write. It is not wired
	// into checkPrivileges/pruning decisions in this module, but is
	// available to a query planner via DistinctEstimate.
	DistinctEstimator *hyperloglog.Sketch
}

func NewMetadata() *Metadata {
	return &Metadata{
		NullMap:           roaring.New(),
		DistinctEstimator: hyperloglog.New(),
	}
}

// HasNulls reports whether any row observed so far is null.
func (m *Metadata) HasNulls() bool {
	return m.NullMap != nil && !m.NullMap.IsEmpty()
}

// Observe folds one value into the chunk's running statistics. value
// may be nil to record a null row at rowIdx.
func (m *Metadata) Observe(rowIdx uint32, value []byte) {
	m.RowCount++
	if value == nil {
		if m.NullMap == nil {
			m.NullMap = roaring.New()
		}
		m.NullMap.Add(rowIdx)
		return
	}
	if m.Min == nil || lessBytes(value, m.Min) {
		m.Min = append([]byte(nil), value...)
	}
	if m.Max == nil || lessBytes(m.Max, value) {
		m.Max = append([]byte(nil), value...)
	}
	if m.DistinctEstimator == nil {
		m.DistinctEstimator = hyperloglog.New()
	}
	m.DistinctEstimator.Insert(value)
}

// DistinctEstimate returns the approximate number of distinct values
// observed, or 0 if no sketch has been built yet.
func (m *Metadata) DistinctEstimate() uint64 {
	if m.DistinctEstimator == nil {
		return 0
	}
	return m.DistinctEstimator.Estimate()
}

func lessBytes(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Entry pairs a Key with its Metadata, the unit returned by
// getChunkMetadataVec[ForKeyPrefix].
type Entry struct {
	Key      Key
	Metadata *Metadata
}
