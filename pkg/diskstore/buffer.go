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

package diskstore

import (
	"github.com/laminadb/lamina/pkg/buffermgr"
	"github.com/laminadb/lamina/pkg/chunkkey"
)

// Buffer is the disk-level AbstractBuffer: the chunk's materialized
// bytes held in memory between Get/Create and the next Checkpoint or
// eviction, backed by a page file under the store's table directory.
// Every field below is guarded by store.mu, not a lock of its own, so
// Checkpoint can see a consistent view without a second lock order.
type Buffer struct {
	key      chunkkey.Key
	pageSize int
	store    *Store

	data  []byte
	dirty bool
	pins  int32
}

var _ buffermgr.AbstractBuffer = (*Buffer)(nil)

func (b *Buffer) Key() chunkkey.Key { return b.key }

func (b *Buffer) Location() chunkkey.Location {
	return chunkkey.Location{Level: chunkkey.Disk, Device: 0}
}

func (b *Buffer) PageSize() int { return b.pageSize }

func (b *Buffer) Size() int {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return len(b.data)
}

func (b *Buffer) IsDirty() bool {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.dirty
}

func (b *Buffer) PinCount() int {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return int(b.pins)
}

func (b *Buffer) Bytes() []byte {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.data
}

func (b *Buffer) Write(offset int, p []byte) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if offset < 0 || offset+len(p) > len(b.data) {
		return errShortBuffer
	}
	copy(b.data[offset:], p)
	b.dirty = true
	return nil
}

// Release returns one pin to the owning Store.
func (b *Buffer) Release() {
	b.store.Unpin(b)
}
