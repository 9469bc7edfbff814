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
	"sort"
	"sync"
	"sync/atomic"

	"github.com/laminadb/lamina/pkg/buffermgr"
	"github.com/laminadb/lamina/pkg/chunkkey"
	"github.com/laminadb/lamina/pkg/moerr"
)

// Manager is the CPU- and GPU-level AbstractBufferManager: a
// fixed-budget pool of page-aligned slabs, grown lazily up to
// maxSlabs. Slabs are never released once allocated; eviction frees
// pages inside them. One Manager backs exactly one (MemoryLevel,
// device) pair.
type Manager struct {
	loc          chunkkey.Location
	pageSize     int
	pagesPerSlab int
	maxSlabs     int
	arena        arena

	mu         sync.Mutex
	slabs      []*slabData
	index      map[chunkkey.Key]*region
	touch      uint64
	capped     bool
	candidates *evictCandidates
}

var _ buffermgr.Manager = (*Manager)(nil)

// NewManager builds a Manager for loc with the given page size and a
// budget of budgetBytes, rounded down to a whole number of
// pagesPerSlab-page slabs (at least one).
func NewManager(loc chunkkey.Location, pageSize, pagesPerSlab int, budgetBytes int64) *Manager {
	slabBytes := int64(pageSize) * int64(pagesPerSlab)
	maxSlabs := int(budgetBytes / slabBytes)
	if maxSlabs < 1 {
		maxSlabs = 1
	}
	return &Manager{
		loc:          loc,
		pageSize:     pageSize,
		pagesPerSlab: pagesPerSlab,
		maxSlabs:     maxSlabs,
		arena:        newArena(locationHint{level: int(loc.Level), device: loc.Device}),
		index:        make(map[chunkkey.Key]*region),
		candidates:   newEvictCandidates(256),
	}
}

func (m *Manager) Location() chunkkey.Location { return m.loc }

func pagesFor(numBytes, pageSize int) int {
	n := numBytes / pageSize
	if numBytes%pageSize != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// CreateChunkBuffer implements buffermgr.Manager.
func (m *Manager) CreateChunkBuffer(key chunkkey.Key, pageSize, numPages int) (buffermgr.AbstractBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[key]; exists {
		return nil, moerr.NewAlreadyExists("chunk %s already resident at %s", key, m.loc)
	}
	r, err := m.allocLocked(numPages)
	if err != nil {
		return nil, err
	}
	r.status = buffermgr.Used
	r.key = key
	r.touch = m.nextTouch()
	r.pinned = 1
	m.index[key] = r
	buf := &Buffer{key: key, loc: m.loc, pageSize: pageSize, mgr: m, rgn: r, pins: 1}
	r.buf = buf
	return buf, nil
}

// GetChunkBuffer implements buffermgr.Manager.
func (m *Manager) GetChunkBuffer(key chunkkey.Key) (buffermgr.AbstractBuffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.index[key]
	if !ok || r.status != buffermgr.Used {
		return nil, false
	}
	r.touch = m.nextTouch()
	atomic.AddInt32(&r.pinned, 1)
	atomic.AddInt32(&r.buf.pins, 1)
	return r.buf, true
}

// Unpin implements buffermgr.Manager. A region whose pin count reaches
// zero is staged as an eviction candidate so the next allocation that
// needs room can find it without a full touch-order scan.
func (m *Manager) Unpin(b buffermgr.AbstractBuffer) {
	buf, ok := b.(*Buffer)
	if !ok || buf.rgn == nil {
		return
	}
	if atomic.AddInt32(&buf.pins, -1) < 0 {
		atomic.StoreInt32(&buf.pins, 0)
	}
	m.mu.Lock()
	r := buf.rgn
	if atomic.AddInt32(&r.pinned, -1) < 0 {
		atomic.StoreInt32(&r.pinned, 0)
	}
	if r.status == buffermgr.Used && atomic.LoadInt32(&r.pinned) == 0 {
		m.candidates.push(evictCandidate{key: r.key, touch: r.touch, rgn: r})
	}
	m.mu.Unlock()
}

// DeleteChunk implements buffermgr.Manager.
func (m *Manager) DeleteChunk(key chunkkey.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(key)
}

func (m *Manager) deleteLocked(key chunkkey.Key) error {
	r, ok := m.index[key]
	if !ok {
		return moerr.NewNotFound("chunk %s not resident at %s", key, m.loc)
	}
	if atomic.LoadInt32(&r.pinned) > 0 {
		return moerr.NewPinned("chunk %s is pinned at %s", key, m.loc)
	}
	r.status = buffermgr.Free
	r.key = chunkkey.Key{}
	r.buf = nil
	delete(m.index, key)
	r.slab.coalesce()
	return nil
}

// DeletePrefix implements buffermgr.Manager.
func (m *Manager) DeletePrefix(prefix []int32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victims []chunkkey.Key
	for k := range m.index {
		if k.HasPrefix(prefix) {
			victims = append(victims, k)
		}
	}
	n := 0
	for _, k := range victims {
		if err := m.deleteLocked(k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Alloc implements buffermgr.Manager: an anonymous buffer with the
// zero chunkkey.Key, never entered into the chunk index.
func (m *Manager) Alloc(numBytes int) (buffermgr.AbstractBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.allocLocked(pagesFor(numBytes, m.pageSize))
	if err != nil {
		return nil, err
	}
	r.status = buffermgr.Used
	r.touch = m.nextTouch()
	r.pinned = 1
	buf := &Buffer{loc: m.loc, pageSize: m.pageSize, mgr: m, rgn: r, pins: 1}
	r.buf = buf
	return buf, nil
}

// Free implements buffermgr.Manager.
func (m *Manager) Free(b buffermgr.AbstractBuffer) {
	buf, ok := b.(*Buffer)
	if !ok || buf.rgn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := buf.rgn
	r.status = buffermgr.Free
	r.buf = nil
	buf.rgn = nil
	r.slab.coalesce()
}

func (m *Manager) nextTouch() uint64 {
	m.touch++
	return m.touch
}

// allocLocked implements the allocation algorithm: round up to pages,
// best-fit scan, grow a slab, evict the coldest unpinned chunks, and
// only then fail with AllocationCapped. mgr.mu must be held.
func (m *Manager) allocLocked(need int) (*region, error) {
	if need > m.pagesPerSlab {
		return nil, moerr.NewAllocationCapped("request of %d pages exceeds slab size %d", need, m.pagesPerSlab)
	}

	if r := m.findFreeLocked(need); r != nil {
		m.capped = false
		return r, nil
	}

	if len(m.slabs) < m.maxSlabs {
		s, err := newSlab(m, len(m.slabs))
		if err == nil {
			m.slabs = append(m.slabs, s)
			r := s.bestFree(need)
			if r != nil {
				m.capped = false
				return s.carve(r, need), nil
			}
		}
	}

	if m.evictLocked(need) {
		if r := m.findFreeLocked(need); r != nil {
			m.capped = false
			return r, nil
		}
	}

	m.capped = true
	return nil, moerr.NewAllocationCapped("no free pages for a %d page request at %s", need, m.loc)
}

func (m *Manager) findFreeLocked(need int) *region {
	var bestSlab *slabData
	var best *region
	for _, s := range m.slabs {
		if r := s.bestFree(need); r != nil && (best == nil || r.numPages < best.numPages) {
			bestSlab, best = s, r
		}
	}
	if best == nil {
		return nil
	}
	return bestSlab.carve(best, need)
}

// evictLocked first pops staged candidates one at a time, evicting
// each one that is still a valid victim (still Used, still unpinned,
// untouched since it was staged) and discarding stale ones, until
// need is met or the queue runs dry. Candidates left in the queue
// once need is met stay there for the next allocation. Only once the
// queue can't cover need does it fall back to a full touch-order scan
// for the remainder. It coalesces every touched slab and returns
// whether it freed anything.
func (m *Manager) evictLocked(need int) bool {
	freed := 0
	touched := map[*slabData]bool{}

	evict := func(r *region) {
		if r.key != (chunkkey.Key{}) {
			delete(m.index, r.key)
		}
		r.status = buffermgr.Evicted
		r.buf = nil
		freed += r.numPages
		touched[r.slab] = true
	}

	for freed < need {
		c, ok := m.candidates.pop()
		if !ok {
			break
		}
		r := c.rgn
		if r.status != buffermgr.Used || atomic.LoadInt32(&r.pinned) != 0 || r.touch != c.touch {
			continue // stale: re-pinned, re-touched, or already gone
		}
		evict(r)
	}

	if freed < need {
		type victim struct {
			r *region
		}
		var scan []victim
		for _, s := range m.slabs {
			for _, r := range s.regions {
				if r.status == buffermgr.Used && atomic.LoadInt32(&r.pinned) == 0 {
					scan = append(scan, victim{r})
				}
			}
		}
		sort.Slice(scan, func(i, j int) bool { return scan[i].r.touch < scan[j].r.touch })
		for _, c := range scan {
			if freed >= need {
				break
			}
			evict(c.r)
		}
	}

	for s := range touched {
		s.coalesce()
	}
	return freed > 0
}

// Checkpoint implements buffermgr.Manager.
func (m *Manager) Checkpoint(flush func(key chunkkey.Key, data []byte) error) error {
	return m.checkpoint(nil, flush)
}

// CheckpointPrefix implements buffermgr.Manager.
func (m *Manager) CheckpointPrefix(prefix []int32, flush func(key chunkkey.Key, data []byte) error) error {
	return m.checkpoint(prefix, flush)
}

func (m *Manager) checkpoint(prefix []int32, flush func(key chunkkey.Key, data []byte) error) error {
	m.mu.Lock()
	type dirty struct {
		key  chunkkey.Key
		data []byte
		buf  *Buffer
	}
	var pending []dirty
	for k, r := range m.index {
		if prefix != nil && !k.HasPrefix(prefix) {
			continue
		}
		if r.buf != nil && r.buf.IsDirty() {
			pending = append(pending, dirty{key: k, data: append([]byte(nil), r.bytes()...), buf: r.buf})
		}
	}
	m.mu.Unlock()

	for _, d := range pending {
		if err := flush(d.key, d.data); err != nil {
			return err
		}
		d.buf.setDirty(false)
	}
	return nil
}

// ClearMemory implements buffermgr.Manager: evicts every unpinned
// buffer, anonymous ones included; pinned buffers are left untouched.
func (m *Manager) ClearMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slabs {
		m.evictAllUnpinnedInSlab(s)
	}
}

func (m *Manager) evictAllUnpinnedInSlab(s *slabData) {
	for _, r := range s.regions {
		if r.status == buffermgr.Used && atomic.LoadInt32(&r.pinned) == 0 {
			if r.key != (chunkkey.Key{}) {
				delete(m.index, r.key)
			}
			r.status = buffermgr.Evicted
			r.buf = nil
		}
	}
	s.coalesce()
}

// MemoryInfo implements buffermgr.Manager.
func (m *Manager) MemoryInfo() buffermgr.MemoryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := buffermgr.MemoryInfo{
		PageSize:           m.pageSize,
		MaxNumPages:        m.maxSlabs * m.pagesPerSlab,
		IsAllocationCapped: m.capped,
	}
	for _, s := range m.slabs {
		info.NumPageAllocated += s.usedPages()
		for _, r := range s.regions {
			info.NodeMemoryData = append(info.NodeMemoryData, r.memoryData())
		}
	}
	return info
}

// IsResident implements buffermgr.Manager.
func (m *Manager) IsResident(key chunkkey.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.index[key]
	return ok && r.status == buffermgr.Used
}
