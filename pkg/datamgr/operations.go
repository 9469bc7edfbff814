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
	"github.com/laminadb/lamina/pkg/buffermgr"
	"github.com/laminadb/lamina/pkg/chunkkey"
	"github.com/laminadb/lamina/pkg/moerr"
)

func numPagesFor(numBytes, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	n := numBytes / pageSize
	if numBytes%pageSize != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (dm *DataManager) createAt(mgr buffermgr.Manager, key chunkkey.Key, level chunkkey.Level, numBytes int) (buffermgr.AbstractBuffer, error) {
	if level == chunkkey.Disk {
		return mgr.CreateChunkBuffer(key, numBytes, 1)
	}
	return mgr.CreateChunkBuffer(key, dm.cfg.PageSize, numPagesFor(numBytes, dm.cfg.PageSize))
}

// CreateChunkBuffer implements the createChunkBuffer contract.
func (dm *DataManager) CreateChunkBuffer(key chunkkey.Key, level chunkkey.Level, device, pageSize int) (buffermgr.AbstractBuffer, error) {
	mgr, err := dm.managerAt(level, device)
	if err != nil {
		return nil, err
	}
	return dm.createAt(mgr, key, level, pageSize)
}

// GetChunkBuffer implements the getChunkBuffer contract, pulling the
// chunk up from the nearest lower level on a miss.
func (dm *DataManager) GetChunkBuffer(key chunkkey.Key, level chunkkey.Level, device, numBytes int) (buffermgr.AbstractBuffer, error) {
	mgr, err := dm.managerAt(level, device)
	if err != nil {
		return nil, err
	}
	if buf, ok := mgr.GetChunkBuffer(key); ok {
		return buf, nil
	}

	for _, lower := range dm.lowerLevels(level) {
		src, ok := lower.GetChunkBuffer(key)
		if !ok {
			continue
		}
		size := src.Size()
		if numBytes > size {
			size = numBytes
		}
		dst, err := dm.createAt(mgr, key, level, size)
		if err != nil {
			lower.Unpin(src)
			return nil, err
		}
		if err := dst.Write(0, src.Bytes()); err != nil {
			lower.Unpin(src)
			return nil, err
		}
		lower.Unpin(src)
		return dst, nil
	}
	return nil, moerr.NewNotFound("chunk %s not found at or below %s", key, level)
}

// DeleteChunksWithPrefix implements deleteChunksWithPrefix. A nil
// level deletes from every level; partial progress on a Pinned failure
// is not rolled back, matching the original's semantics.
func (dm *DataManager) DeleteChunksWithPrefix(prefix []int32, level *chunkkey.Level) error {
	var targets []buffermgr.Manager
	if level == nil {
		targets = dm.allManagers()
	} else if *level == chunkkey.GPU {
		for _, g := range dm.gpus {
			targets = append(targets, g)
		}
	} else {
		mgr, err := dm.managerAt(*level, 0)
		if err != nil {
			return err
		}
		targets = []buffermgr.Manager{mgr}
	}
	for _, mgr := range targets {
		if _, err := mgr.DeletePrefix(prefix); err != nil {
			return err
		}
	}
	return nil
}

// Alloc implements alloc(level, device, numBytes).
func (dm *DataManager) Alloc(level chunkkey.Level, device, numBytes int) (buffermgr.AbstractBuffer, error) {
	mgr, err := dm.managerAt(level, device)
	if err != nil {
		return nil, err
	}
	return mgr.Alloc(numBytes)
}

// Free implements free(buffer).
func (dm *DataManager) Free(buf buffermgr.AbstractBuffer) error {
	mgr, err := dm.managerAt(buf.Location().Level, buf.Location().Device)
	if err != nil {
		return err
	}
	mgr.Free(buf)
	return nil
}

// Copy implements copy(dst, src): a byte copy across buffers,
// including cross-device transfers, bounded by the smaller size.
func (dm *DataManager) Copy(dst, src buffermgr.AbstractBuffer) error {
	n := src.Size()
	if dst.Size() < n {
		n = dst.Size()
	}
	return dst.Write(0, src.Bytes()[:n])
}

// IsBufferOnDevice implements isBufferOnDevice(key, level, device).
func (dm *DataManager) IsBufferOnDevice(key chunkkey.Key, level chunkkey.Level, device int) (bool, error) {
	mgr, err := dm.managerAt(level, device)
	if err != nil {
		return false, err
	}
	return mgr.IsResident(key), nil
}

// GetMemoryInfo implements getMemoryInfo(level): one MemoryInfo per
// device in that level.
func (dm *DataManager) GetMemoryInfo(level chunkkey.Level) ([]buffermgr.MemoryInfo, error) {
	switch level {
	case chunkkey.Disk:
		return []buffermgr.MemoryInfo{dm.disk.MemoryInfo()}, nil
	case chunkkey.CPU:
		return []buffermgr.MemoryInfo{dm.cpu.MemoryInfo()}, nil
	case chunkkey.GPU:
		out := make([]buffermgr.MemoryInfo, len(dm.gpus))
		for i, g := range dm.gpus {
			out[i] = g.MemoryInfo()
		}
		return out, nil
	default:
		panic(moerr.NewInvariant("unknown memory level %d", level))
	}
}

// CheckpointTable implements checkpoint(db, table): flushes dirty
// buffers for that table down to disk from every cache level, then
// persists disk's own dirty buffers; each chunk persisted advances the
// table's epoch by one.
func (dm *DataManager) CheckpointTable(db, table int32) error {
	prefix := []int32{db, table}
	for _, mgr := range []buffermgr.Manager{dm.cpu} {
		if err := dm.pushDown(mgr, prefix); err != nil {
			return err
		}
	}
	for _, g := range dm.gpus {
		if err := dm.pushDown(g, prefix); err != nil {
			return err
		}
	}
	return dm.disk.CheckpointPrefix(prefix, nil)
}

// pushDown flushes mgr's dirty chunks matching prefix down to disk,
// creating the disk-side chunk if this is its first checkpoint.
func (dm *DataManager) pushDown(mgr buffermgr.Manager, prefix []int32) error {
	return mgr.CheckpointPrefix(prefix, func(key chunkkey.Key, data []byte) error {
		if !dm.disk.IsResident(key) {
			if _, err := dm.disk.CreateChunkBuffer(key, len(data), 1); err != nil {
				return err
			}
		}
		diskBuf, ok := dm.disk.GetChunkBuffer(key)
		if !ok {
			return moerr.NewIOFailure(nil, "disk chunk %s vanished during checkpoint", key)
		}
		defer dm.disk.Unpin(diskBuf)
		return diskBuf.Write(0, data)
	})
}

// ClearMemory implements clearMemory(level): evicts every unpinned
// chunk at that level.
func (dm *DataManager) ClearMemory(level chunkkey.Level) error {
	switch level {
	case chunkkey.Disk:
		dm.disk.ClearMemory()
	case chunkkey.CPU:
		dm.cpu.ClearMemory()
	case chunkkey.GPU:
		for _, g := range dm.gpus {
			g.ClearMemory()
		}
	default:
		panic(moerr.NewInvariant("unknown memory level %d", level))
	}
	return nil
}

// GetChunkMetadataVec implements getChunkMetadataVec: every
// (key, metadata) pair known to the disk-level manager.
func (dm *DataManager) GetChunkMetadataVec() ([]chunkkey.Entry, error) {
	return dm.disk.MetadataVecForKeyPrefix(nil)
}

// GetChunkMetadataVecForKeyPrefix implements
// getChunkMetadataVecForKeyPrefix.
func (dm *DataManager) GetChunkMetadataVecForKeyPrefix(prefix []int32) ([]chunkkey.Entry, error) {
	return dm.disk.MetadataVecForKeyPrefix(prefix)
}

// RemoveTableRelatedDS implements removeTableRelatedDS(db, table):
// deletes every chunk under the table from every level, then drops
// the table's chunk-mutex entries and on-disk directory.
func (dm *DataManager) RemoveTableRelatedDS(db, table int32) error {
	prefix := []int32{db, table}
	if err := dm.DeleteChunksWithPrefix(prefix, nil); err != nil {
		return err
	}
	dm.locks.Drop(prefix)
	return dm.disk.RemoveTableDirectory(db, table)
}

// SetTableEpoch implements setTableEpoch(db, table, epoch).
func (dm *DataManager) SetTableEpoch(db, table int32, epoch uint64) error {
	return dm.disk.SetTableEpoch(db, table, epoch)
}

// GetTableEpoch implements getTableEpoch(db, table).
func (dm *DataManager) GetTableEpoch(db, table int32) uint64 {
	return dm.disk.TableEpoch(db, table)
}
