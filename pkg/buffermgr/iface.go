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

// Package buffermgr holds the capability contract shared by every
// memory-level buffer manager (disk, CPU, GPU). DataManager in package
// datamgr depends only on this interface, never on a concrete
// implementation, so adding a memory level never touches datamgr.
package buffermgr

import "github.com/laminadb/lamina/pkg/chunkkey"

// AbstractBuffer is a handle to bytes living at one Location. Every
// concrete buffer type in this module (bufpool.Buffer, diskstore's file
// buffer) satisfies it.
type AbstractBuffer interface {
	Key() chunkkey.Key
	Location() chunkkey.Location
	Size() int
	PageSize() int
	IsDirty() bool
	PinCount() int
	Bytes() []byte
	Write(offset int, p []byte) error
}

// MemoryData is one page-run record inside a Manager: a slab, a page
// offset within it, a length, the chunk it belongs to (if any), a
// touch counter for LRU ordering, and a lifecycle status.
type MemoryData struct {
	SlabNum   int
	StartPage int
	NumPages  int
	Touch     uint64
	ChunkKey  chunkkey.Key
	Status    Status
}

// MemoryInfo is a snapshot of one Manager's page accounting, returned
// by getMemoryInfo.
type MemoryInfo struct {
	PageSize           int
	MaxNumPages        int
	NumPageAllocated   int
	IsAllocationCapped bool
	NodeMemoryData     []MemoryData
}

// Status is the lifecycle state of a MemoryData record.
type Status int32

const (
	Free Status = iota
	Used
	Evicted
)

func (s Status) String() string {
	switch s {
	case Free:
		return "FREE"
	case Used:
		return "USED"
	case Evicted:
		return "EVICTED"
	default:
		return "UNKNOWN"
	}
}

// Manager is the capability set every memory-level buffer manager
// exports: {alloc, free, get, put, checkpoint, metadata}, plus the
// chunk-addressed operations layered on top of it.
type Manager interface {
	Location() chunkkey.Location

	// CreateChunkBuffer reserves pageSize*pages bytes for key and
	// returns a pinned buffer over them. It fails with
	// moerr.AlreadyExists if key is already resident.
	CreateChunkBuffer(key chunkkey.Key, pageSize, numPages int) (AbstractBuffer, error)

	// GetChunkBuffer returns the resident, pinned buffer for key, or
	// ok=false if key is not resident here.
	GetChunkBuffer(key chunkkey.Key) (buf AbstractBuffer, ok bool)

	// Unpin releases one pin previously obtained from
	// CreateChunkBuffer or GetChunkBuffer.
	Unpin(buf AbstractBuffer)

	// DeleteChunk evicts key's buffer and releases its pages. It fails
	// with moerr.Pinned if the buffer is pinned and moerr.NotFound if
	// key is not resident.
	DeleteChunk(key chunkkey.Key) error

	// DeletePrefix deletes every resident chunk whose Key has the
	// given prefix and returns the count deleted.
	DeletePrefix(prefix []int32) (int, error)

	// Alloc reserves an anonymous, unkeyed buffer of numBytes.
	Alloc(numBytes int) (AbstractBuffer, error)

	// Free releases a buffer obtained from Alloc.
	Free(buf AbstractBuffer)

	// Checkpoint calls flush for every dirty chunk resident here,
	// clearing the dirty flag on success, and advances nothing by
	// itself (epoch bookkeeping lives in datamgr).
	Checkpoint(flush func(key chunkkey.Key, data []byte) error) error

	// CheckpointPrefix is Checkpoint restricted to chunks whose key has
	// the given prefix; dirty chunks outside the prefix are left dirty
	// and untouched.
	CheckpointPrefix(prefix []int32, flush func(key chunkkey.Key, data []byte) error) error

	// ClearMemory evicts every unpinned chunk.
	ClearMemory()

	MemoryInfo() MemoryInfo

	IsResident(key chunkkey.Key) bool
}
