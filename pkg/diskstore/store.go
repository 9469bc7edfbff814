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

// Package diskstore is the DISK-level AbstractBufferManager: the
// authoritative, durable copy of every chunk. Chunk bytes live in
// fixed-size page files under a per-table directory; chunk metadata
// and per-table epochs live in a pebble-backed catalog, mirrored into
// an in-memory btree index for fast prefix scans.
package diskstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pierrec/lz4"

	"github.com/laminadb/lamina/pkg/buffermgr"
	"github.com/laminadb/lamina/pkg/chunkkey"
	"github.com/laminadb/lamina/pkg/moerr"
)

// Store is the DISK-level buffermgr.Manager.
type Store struct {
	dataDir string
	pebble  *pebble.DB

	mu     sync.Mutex
	index  *chunkIndex
	open   map[chunkkey.Key]*Buffer
	epochs map[[8]byte]uint64
}

var _ buffermgr.Manager = (*Store)(nil)

// Open builds a Store rooted at dataDir, creating it if necessary, and
// rebuilds the in-memory chunk index from the pebble catalog.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, moerr.NewIOFailure(err, "creating data directory %s", dataDir)
	}
	db, err := pebble.Open(filepath.Join(dataDir, "catalog"), &pebble.Options{})
	if err != nil {
		return nil, moerr.NewIOFailure(err, "opening catalog at %s", dataDir)
	}
	s := &Store{
		dataDir: dataDir,
		pebble:  db,
		index:   newChunkIndex(),
		open:    make(map[chunkkey.Key]*Buffer),
		epochs:  make(map[[8]byte]uint64),
	}
	if err := s.rebuildIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.pebble.Close()
}

func (s *Store) Location() chunkkey.Location {
	return chunkkey.Location{Level: chunkkey.Disk, Device: 0}
}

func (s *Store) rebuildIndex() error {
	iter := s.pebble.NewIter(&pebble.IterOptions{})
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		switch len(k) {
		case 16:
			s.index.insert(decodeKey(k))
		case 8:
			var tk [8]byte
			copy(tk[:], k)
			s.epochs[tk] = binary.BigEndian.Uint64(iter.Value())
		}
	}
	return iter.Error()
}

func tableEpochKey(db, table int32) [8]byte {
	var k [8]byte
	binary.BigEndian.PutUint32(k[0:4], uint32(db))
	binary.BigEndian.PutUint32(k[4:8], uint32(table))
	return k
}

func (s *Store) pagePath(key chunkkey.Key) string {
	dir := filepath.Join(s.dataDir, fmt.Sprintf("db_%d", key[chunkkey.DB]), fmt.Sprintf("table_%d", key[chunkkey.Table]))
	return filepath.Join(dir, fmt.Sprintf("%d_%d.page", key[chunkkey.Column], key[chunkkey.Fragment]))
}

// CreateChunkBuffer implements buffermgr.Manager: materializes a new,
// zero-filled page file and a catalog entry at epoch 0.
func (s *Store) CreateChunkBuffer(key chunkkey.Key, pageSize, numPages int) (buffermgr.AbstractBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index.has(key) {
		return nil, moerr.NewAlreadyExists("chunk %s already exists on disk", key)
	}
	path := s.pagePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, moerr.NewIOFailure(err, "creating table directory for %s", key)
	}
	data := make([]byte, pageSize*numPages)
	compressed, err := compressPage(data)
	if err != nil {
		return nil, moerr.NewIOFailure(err, "compressing page file for %s", key)
	}
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return nil, moerr.NewIOFailure(err, "writing page file for %s", key)
	}

	rec, err := metadataToRecord(chunkkey.NewMetadata(), 0, int64(len(data)))
	if err != nil {
		return nil, moerr.NewIOFailure(err, "encoding metadata for %s", key)
	}
	if err := s.putRecord(key, rec); err != nil {
		return nil, err
	}
	s.index.insert(key)

	buf := &Buffer{key: key, pageSize: pageSize, store: s, data: data, pins: 1}
	s.open[key] = buf
	return buf, nil
}

func (s *Store) putRecord(key chunkkey.Key, rec record) error {
	enc, err := encodeRecord(rec)
	if err != nil {
		return moerr.NewIOFailure(err, "encoding catalog record for %s", key)
	}
	if err := s.pebble.Set(encodeKey(key), enc, pebble.Sync); err != nil {
		return moerr.NewIOFailure(err, "writing catalog record for %s", key)
	}
	return nil
}

func (s *Store) getRecord(key chunkkey.Key) (record, bool, error) {
	v, closer, err := s.pebble.Get(encodeKey(key))
	if err == pebble.ErrNotFound {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, moerr.NewIOFailure(err, "reading catalog record for %s", key)
	}
	defer closer.Close()
	rec, err := decodeRecord(v)
	if err != nil {
		return record{}, false, moerr.NewIOFailure(err, "decoding catalog record for %s", key)
	}
	return rec, true, nil
}

// GetChunkBuffer implements buffermgr.Manager: reads the chunk's page
// file into memory and pins it.
func (s *Store) GetChunkBuffer(key chunkkey.Key) (buffermgr.AbstractBuffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if buf, ok := s.open[key]; ok {
		buf.pins++
		return buf, true
	}
	if !s.index.has(key) {
		return nil, false
	}
	compressed, err := os.ReadFile(s.pagePath(key))
	if err != nil {
		return nil, false
	}
	data, err := decompressPage(compressed)
	if err != nil {
		return nil, false
	}
	buf := &Buffer{key: key, pageSize: len(data), store: s, data: data, pins: 1}
	s.open[key] = buf
	return buf, true
}

// Unpin implements buffermgr.Manager.
func (s *Store) Unpin(b buffermgr.AbstractBuffer) {
	buf, ok := b.(*Buffer)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf.pins > 0 {
		buf.pins--
	}
	if buf.pins == 0 && !buf.dirty {
		delete(s.open, buf.key)
	}
}

// DeleteChunk implements buffermgr.Manager.
func (s *Store) DeleteChunk(key chunkkey.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(key)
}

func (s *Store) deleteLocked(key chunkkey.Key) error {
	if buf, ok := s.open[key]; ok && buf.pins > 0 {
		return moerr.NewPinned("chunk %s is pinned on disk", key)
	}
	if !s.index.has(key) {
		return moerr.NewNotFound("chunk %s not found on disk", key)
	}
	if err := s.pebble.Delete(encodeKey(key), pebble.Sync); err != nil {
		return moerr.NewIOFailure(err, "deleting catalog record for %s", key)
	}
	_ = os.Remove(s.pagePath(key))
	s.index.remove(key)
	delete(s.open, key)
	return nil
}

// DeletePrefix implements buffermgr.Manager.
func (s *Store) DeletePrefix(prefix []int32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.index.scanPrefix(prefix)
	n := 0
	for _, k := range keys {
		if err := s.deleteLocked(k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Alloc implements buffermgr.Manager: an in-memory, unpersisted
// scratch buffer, never entered into the catalog.
func (s *Store) Alloc(numBytes int) (buffermgr.AbstractBuffer, error) {
	return &Buffer{pageSize: numBytes, store: s, data: make([]byte, numBytes), pins: 1}, nil
}

// Free implements buffermgr.Manager.
func (s *Store) Free(b buffermgr.AbstractBuffer) {
	if buf, ok := b.(*Buffer); ok {
		buf.pins = 0
	}
}

// Checkpoint implements buffermgr.Manager: writes every dirty open
// buffer's bytes, lz4-compressed, to its page file, then updates that
// chunk's catalog record and advances its table epoch inside one
// pebble batch, so the epoch bump is atomic with the record write.
func (s *Store) Checkpoint(flush func(key chunkkey.Key, data []byte) error) error {
	return s.checkpoint(nil, flush)
}

// CheckpointPrefix implements buffermgr.Manager.
func (s *Store) CheckpointPrefix(prefix []int32, flush func(key chunkkey.Key, data []byte) error) error {
	return s.checkpoint(prefix, flush)
}

func (s *Store) checkpoint(prefix []int32, flush func(key chunkkey.Key, data []byte) error) error {
	s.mu.Lock()
	var dirty []*Buffer
	for k, buf := range s.open {
		if prefix != nil && !k.HasPrefix(prefix) {
			continue
		}
		if buf.dirty {
			dirty = append(dirty, buf)
		}
	}
	s.mu.Unlock()

	for _, buf := range dirty {
		s.mu.Lock()
		data := append([]byte(nil), buf.data...)
		s.mu.Unlock()

		if flush != nil {
			if err := flush(buf.key, data); err != nil {
				return err
			}
		}
		if err := s.persist(buf.key, data); err != nil {
			return err
		}
		s.mu.Lock()
		buf.dirty = false
		s.mu.Unlock()
	}
	return nil
}

// compressPage lz4-compresses a page's bytes for on-disk storage.
func compressPage(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	w := lz4.NewWriter(&compressed)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

// decompressPage reverses compressPage.
func decompressPage(compressed []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
}

func (s *Store) persist(key chunkkey.Key, data []byte) error {
	compressed, err := compressPage(data)
	if err != nil {
		return moerr.NewIOFailure(err, "compressing checkpoint payload for %s", key)
	}
	if err := os.WriteFile(s.pagePath(key), compressed, 0o644); err != nil {
		return moerr.NewIOFailure(err, "persisting page file for %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found, err := s.getRecord(key)
	if err != nil {
		return err
	}
	if !found {
		rec = record{}
	}
	rec.Size = int64(len(data))

	epochKey := tableEpochKey(key[chunkkey.DB], key[chunkkey.Table])
	rec.Epoch = s.epochs[epochKey] + 1

	enc, err := encodeRecord(rec)
	if err != nil {
		return moerr.NewIOFailure(err, "encoding checkpoint record for %s", key)
	}
	batch := s.pebble.NewBatch()
	if err := batch.Set(encodeKey(key), enc, nil); err != nil {
		return moerr.NewIOFailure(err, "staging catalog record for %s", key)
	}
	var epochVal [8]byte
	binary.BigEndian.PutUint64(epochVal[:], rec.Epoch)
	if err := batch.Set(epochKey[:], epochVal[:], nil); err != nil {
		return moerr.NewIOFailure(err, "staging epoch bump for %s", key)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return moerr.NewIOFailure(err, "committing checkpoint batch for %s", key)
	}
	s.epochs[epochKey] = rec.Epoch
	return nil
}

// ClearMemory implements buffermgr.Manager: drops every unpinned,
// non-dirty open buffer from the in-memory cache. Disk data is
// unaffected; this only frees the process's read cache.
func (s *Store) ClearMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, buf := range s.open {
		if buf.pins == 0 && !buf.dirty {
			delete(s.open, k)
		}
	}
}

// MemoryInfo implements buffermgr.Manager. Disk has no slab/page
// budget of its own; it reports one Used record, without page
// accounting, per chunk buffer currently held open in memory, purely
// for telemetry symmetry with the cache levels.
func (s *Store) MemoryInfo() buffermgr.MemoryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := buffermgr.MemoryInfo{PageSize: 0, MaxNumPages: -1}
	for k := range s.open {
		info.NodeMemoryData = append(info.NodeMemoryData, buffermgr.MemoryData{
			ChunkKey: k,
			Status:   buffermgr.Used,
		})
	}
	return info
}

// IsResident implements buffermgr.Manager.
func (s *Store) IsResident(key chunkkey.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.has(key)
}

// Metadata returns the pruning metadata for key, or ok=false if the
// chunk does not exist on disk.
func (s *Store) Metadata(key chunkkey.Key) (*chunkkey.Metadata, bool, error) {
	s.mu.Lock()
	rec, found, err := s.getRecord(key)
	s.mu.Unlock()
	if err != nil || !found {
		return nil, false, err
	}
	m, err := recordToMetadata(rec)
	if err != nil {
		return nil, false, moerr.NewIOFailure(err, "decoding metadata for %s", key)
	}
	return m, true, nil
}

// MetadataVecForKeyPrefix returns every (key, metadata) pair whose key
// has the given prefix, in ascending key order.
func (s *Store) MetadataVecForKeyPrefix(prefix []int32) ([]chunkkey.Entry, error) {
	s.mu.Lock()
	keys := s.index.scanPrefix(prefix)
	s.mu.Unlock()

	out := make([]chunkkey.Entry, 0, len(keys))
	for _, k := range keys {
		m, ok, err := s.Metadata(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, chunkkey.Entry{Key: k, Metadata: m})
		}
	}
	return out, nil
}

// TableEpoch returns the current checkpoint epoch for (db, table).
func (s *Store) TableEpoch(db, table int32) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epochs[tableEpochKey(db, table)]
}

// SetTableEpoch forces (db, table)'s epoch to v, persisting the change.
func (s *Store) SetTableEpoch(db, table int32, v uint64) error {
	key := tableEpochKey(db, table)
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], v)
	if err := s.pebble.Set(key[:], val[:], pebble.Sync); err != nil {
		return moerr.NewIOFailure(err, "setting epoch for db=%d table=%d", db, table)
	}
	s.mu.Lock()
	s.epochs[key] = v
	s.mu.Unlock()
	return nil
}

// RemoveTableDirectory removes the on-disk directory for (db, table)
// once every chunk under it has already been deleted from the catalog.
func (s *Store) RemoveTableDirectory(db, table int32) error {
	dir := filepath.Join(s.dataDir, fmt.Sprintf("db_%d", db), fmt.Sprintf("table_%d", table))
	if err := os.RemoveAll(dir); err != nil {
		return moerr.NewIOFailure(err, "removing table directory db=%d table=%d", db, table)
	}
	return nil
}
