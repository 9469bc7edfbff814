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

// Package bufpool implements the fixed-budget, slab-and-page buffer
// pool that backs one (memory level, device) pair. DataManager in
// package datamgr owns one Manager per level/device and routes chunk
// requests to the right one.
package bufpool

import (
	"sync"
	"sync/atomic"

	"github.com/laminadb/lamina/pkg/buffermgr"
	"github.com/laminadb/lamina/pkg/chunkkey"
)

// Buffer is an opaque handle to a region of bytes at a specific
// (level, device). It is the concrete type behind the
// AbstractBuffer capability described in the spec: callers see size,
// page size, dirty flag, pin count, and residence metadata, and get
// at the underlying bytes through Bytes.
type Buffer struct {
	key      chunkkey.Key
	loc      chunkkey.Location
	pageSize int
	mgr      *Manager

	mu    sync.Mutex
	rgn   *region
	dirty bool
	pins  int32
}

var _ buffermgr.AbstractBuffer = (*Buffer)(nil)

// Key is the chunk this buffer holds, or the zero Key for an anonymous
// buffer allocated via Manager.Alloc.
func (b *Buffer) Key() chunkkey.Key { return b.key }

func (b *Buffer) Location() chunkkey.Location { return b.loc }

func (b *Buffer) PageSize() int { return b.pageSize }

// Size returns the buffer's usable byte size (numPages * pageSize).
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rgn == nil {
		return 0
	}
	return b.rgn.numPages * b.pageSize
}

func (b *Buffer) IsDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

func (b *Buffer) setDirty(v bool) {
	b.mu.Lock()
	b.dirty = v
	b.mu.Unlock()
}

func (b *Buffer) PinCount() int {
	return int(atomic.LoadInt32(&b.pins))
}

// Bytes returns the live backing slice for this buffer. The slice is
// only valid while the buffer remains pinned; callers that keep no pin
// must copy out of it before releasing.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rgn == nil {
		return nil
	}
	return b.rgn.bytes()
}

// Write copies p into the buffer starting at offset and marks it
// dirty. It fails if p does not fit in the buffer's current size.
func (b *Buffer) Write(offset int, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dst := b.rgn.bytes()
	if offset < 0 || offset+len(p) > len(dst) {
		return errShortBuffer
	}
	copy(dst[offset:], p)
	b.dirty = true
	return nil
}

// Release returns one pin to the owning Manager. Callers that obtained
// this buffer from CreateChunkBuffer, GetChunkBuffer or Alloc must call
// Release exactly once per call that returned it.
func (b *Buffer) Release() {
	b.mgr.Unpin(b)
}
