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
	"github.com/laminadb/lamina/pkg/buffermgr"
	"github.com/laminadb/lamina/pkg/chunkkey"
)

// region is a contiguous run of pages inside one slab. A slab's
// regions always cover every page exactly once, in ascending
// startPage order; Free, Used and Evicted are the only statuses a
// region can carry once it leaves the allocator.
type region struct {
	slab      *slabData
	startPage int
	numPages  int
	status    buffermgr.Status
	key       chunkkey.Key
	touch     uint64
	pinned    int32
	buf       *Buffer
}

func (r *region) bytes() []byte {
	off := r.startPage * r.slab.mgr.pageSize
	n := r.numPages * r.slab.mgr.pageSize
	return r.slab.storage[off : off+n]
}

func (r *region) memoryData() buffermgr.MemoryData {
	return buffermgr.MemoryData{
		SlabNum:   r.slab.num,
		StartPage: r.startPage,
		NumPages:  r.numPages,
		Touch:     r.touch,
		ChunkKey:  r.key,
		Status:    r.status,
	}
}

// slabData is one fixed-size arena allocation, carved into regions.
type slabData struct {
	mgr     *Manager
	num     int
	storage []byte
	regions []*region // ascending startPage, covers [0, pages) exactly
}

func newSlab(mgr *Manager, num int) (*slabData, error) {
	storage, err := mgr.arena.newSlab(mgr.pagesPerSlab * mgr.pageSize)
	if err != nil {
		return nil, err
	}
	s := &slabData{mgr: mgr, num: num, storage: storage}
	s.regions = []*region{{
		slab:      s,
		startPage: 0,
		numPages:  mgr.pagesPerSlab,
		status:    buffermgr.Free,
	}}
	return s, nil
}

// bestFree returns the smallest Free region with numPages >= need, or
// nil if none exists in this slab.
func (s *slabData) bestFree(need int) *region {
	var best *region
	for _, r := range s.regions {
		if r.status != buffermgr.Free || r.numPages < need {
			continue
		}
		if best == nil || r.numPages < best.numPages {
			best = r
		}
	}
	return best
}

// carve splits r (which must be Free and have numPages >= need) into a
// used head of exactly need pages and, if any remainder, a trailing
// Free region. It returns the head.
func (s *slabData) carve(r *region, need int) *region {
	idx := s.indexOf(r)
	if r.numPages == need {
		return r
	}
	head := &region{slab: s, startPage: r.startPage, numPages: need, status: buffermgr.Free}
	tail := &region{slab: s, startPage: r.startPage + need, numPages: r.numPages - need, status: buffermgr.Free}
	s.regions = append(s.regions[:idx], append([]*region{head, tail}, s.regions[idx+1:]...)...)
	return head
}

func (s *slabData) indexOf(r *region) int {
	for i, c := range s.regions {
		if c == r {
			return i
		}
	}
	return -1
}

// coalesce merges every run of adjacent Free/Evicted regions into a
// single Free region, and drops any EvictEd→Free conversion as part of
// the merge. It must be called while mgr.mu is held.
func (s *slabData) coalesce() {
	out := s.regions[:0:0]
	i := 0
	for i < len(s.regions) {
		r := s.regions[i]
		if r.status == buffermgr.Used {
			out = append(out, r)
			i++
			continue
		}
		start := r.startPage
		total := 0
		j := i
		for j < len(s.regions) && s.regions[j].status != buffermgr.Used {
			total += s.regions[j].numPages
			j++
		}
		out = append(out, &region{slab: s, startPage: start, numPages: total, status: buffermgr.Free})
		i = j
	}
	s.regions = out
}

func (s *slabData) usedPages() int {
	n := 0
	for _, r := range s.regions {
		if r.status == buffermgr.Used {
			n += r.numPages
		}
	}
	return n
}
