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

// Package chunkkey defines the identity of a chunk and the memory
// hierarchy it can live in.
package chunkkey

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// Key names a chunk: [db_id, table_id, column_id, fragment_id]. Prefixes
// of a Key name wider scopes: Key{db} names a database, Key{db, table}
// names a table.
type Key [4]int32

// DB, Table, Column, Fragment are the positions inside a Key. A prefix
// of length N is meaningful for N in [1,4].
const (
	DB = iota
	Table
	Column
	Fragment
)

func New(db, table, column, fragment int32) Key {
	return Key{db, table, column, fragment}
}

// TablePrefix returns a Key naming db.table: its column and fragment
// fields are -1, which HasPrefix treats as trailing wildcards.
func TablePrefix(db, table int32) Key {
	return Key{db, table, -1, -1}
}

// HasPrefix reports whether k begins with prefix, where prefix's
// trailing -1 entries (and k's length beyond len(prefix)) are wildcards.
// A prefix of length 0 matches everything.
func (k Key) HasPrefix(prefix []int32) bool {
	n := len(prefix)
	for n > 0 && prefix[n-1] == -1 {
		n--
	}
	for i, v := range prefix[:n] {
		if k[i] != v {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", k[0], k[1], k[2], k[3])
}

// Shard hashes a Key into [0, n) for the sharded chunk-mutex table in
// package datamgr. FNV-1a over the fixed-width encoding keeps the
// distribution stable across runs, which matters for reproducing test
// failures.
func (k Key) Shard(n int) int {
	if n <= 1 {
		return 0
	}
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(k[0]))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(k[1]))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(k[2]))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(k[3]))
	h := fnv.New64a()
	if _, err := h.Write(buf[:]); err != nil {
		panic(err)
	}
	return int(h.Sum64() % uint64(n))
}

// Level is a tier in the memory hierarchy, ordered slowest to fastest.
type Level int

const (
	Disk Level = iota
	CPU
	GPU
)

func (l Level) String() string {
	switch l {
	case Disk:
		return "disk"
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// Location names a buffer pool: a memory level plus a device ordinal
// within that level (always 0 for Disk and CPU, 0..numGpus-1 for GPU).
type Location struct {
	Level  Level
	Device int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.Level, l.Device)
}
