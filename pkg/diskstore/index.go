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
	"bytes"

	"github.com/google/btree"

	"github.com/laminadb/lamina/pkg/chunkkey"
)

// keyItem is the btree.Item backing the in-memory secondary index of
// resident chunk keys, ordered the same way as the pebble keyspace so
// prefix walks can run entirely in memory without touching pebble.
type keyItem struct {
	key chunkkey.Key
}

func (a keyItem) Less(than btree.Item) bool {
	b := than.(keyItem)
	return bytes.Compare(encodeKey(a.key), encodeKey(b.key)) < 0
}

// chunkIndex is an ordered google/btree index over resident chunk
// keys, rebuilt from pebble at Store startup and kept in sync on every
// create/delete.
type chunkIndex struct {
	tree *btree.BTree
}

func newChunkIndex() *chunkIndex {
	return &chunkIndex{tree: btree.New(32)}
}

func (idx *chunkIndex) insert(k chunkkey.Key) {
	idx.tree.ReplaceOrInsert(keyItem{k})
}

func (idx *chunkIndex) remove(k chunkkey.Key) {
	idx.tree.Delete(keyItem{k})
}

func (idx *chunkIndex) has(k chunkkey.Key) bool {
	return idx.tree.Has(keyItem{k})
}

// scanPrefix returns every key with the given prefix, in ascending key
// order.
func (idx *chunkIndex) scanPrefix(prefix []int32) []chunkkey.Key {
	var out []chunkkey.Key
	idx.tree.Ascend(func(it btree.Item) bool {
		k := it.(keyItem).key
		if k.HasPrefix(prefix) {
			out = append(out, k)
		}
		return true
	})
	return out
}
