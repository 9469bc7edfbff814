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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laminadb/lamina/pkg/buffermgr"
	"github.com/laminadb/lamina/pkg/chunkkey"
	"github.com/laminadb/lamina/pkg/moerr"
)

func testLoc() chunkkey.Location {
	return chunkkey.Location{Level: chunkkey.CPU, Device: 0}
}

func TestCreateAndGetChunkBuffer(t *testing.T) {
	m := NewManager(testLoc(), 4096, 16, 16*4096*4)
	key := chunkkey.New(1, 1, 1, 0)

	buf, err := m.CreateChunkBuffer(key, 4096, 2)
	require.NoError(t, err)
	require.Equal(t, 2*4096, buf.Size())
	require.True(t, m.IsResident(key))

	_, err = m.CreateChunkBuffer(key, 4096, 2)
	require.ErrorIs(t, err, moerr.AlreadyExists)

	got, ok := m.GetChunkBuffer(key)
	require.True(t, ok)
	require.Equal(t, 2, got.PinCount())
	got.(*Buffer).Release()
	buf.(*Buffer).Release()
}

func TestDeletePinnedChunkFails(t *testing.T) {
	m := NewManager(testLoc(), 4096, 16, 16*4096*4)
	key := chunkkey.New(1, 1, 1, 0)
	buf, err := m.CreateChunkBuffer(key, 4096, 1)
	require.NoError(t, err)

	err = m.DeleteChunk(key)
	require.ErrorIs(t, err, moerr.Pinned)

	buf.(*Buffer).Release()
	require.NoError(t, m.DeleteChunk(key))
	require.False(t, m.IsResident(key))
}

func TestAllocationCappedWhenFullAndPinned(t *testing.T) {
	m := NewManager(testLoc(), 4096, 4, 4*4096) // exactly one slab of 4 pages
	keys := []chunkkey.Key{
		chunkkey.New(1, 1, 1, 0),
		chunkkey.New(1, 1, 1, 1),
		chunkkey.New(1, 1, 1, 2),
		chunkkey.New(1, 1, 1, 3),
	}
	for _, k := range keys {
		_, err := m.CreateChunkBuffer(k, 4096, 1)
		require.NoError(t, err)
	}

	_, err := m.CreateChunkBuffer(chunkkey.New(1, 1, 1, 4), 4096, 1)
	require.ErrorIs(t, err, moerr.AllocationCapped)
	require.True(t, m.MemoryInfo().IsAllocationCapped)
}

func TestEvictionFreesUnpinnedChunk(t *testing.T) {
	m := NewManager(testLoc(), 4096, 4, 4*4096)
	k1 := chunkkey.New(1, 1, 1, 0)
	k2 := chunkkey.New(1, 1, 1, 1)

	buf1, err := m.CreateChunkBuffer(k1, 4096, 2)
	require.NoError(t, err)
	buf1.(*Buffer).Release() // unpinned, evictable

	buf2, err := m.CreateChunkBuffer(k2, 4096, 2)
	require.NoError(t, err)
	defer buf2.(*Buffer).Release()

	// pool is now full with k2 pinned; a third request needs k1's pages back.
	k3 := chunkkey.New(1, 1, 1, 2)
	buf3, err := m.CreateChunkBuffer(k3, 4096, 2)
	require.NoError(t, err)
	defer buf3.(*Buffer).Release()

	require.False(t, m.IsResident(k1))
	require.True(t, m.IsResident(k2))
	require.True(t, m.IsResident(k3))
}

func TestCheckpointFlushesDirtyAndClearsFlag(t *testing.T) {
	m := NewManager(testLoc(), 4096, 4, 4*4096)
	key := chunkkey.New(1, 1, 1, 0)
	buf, err := m.CreateChunkBuffer(key, 4096, 1)
	require.NoError(t, err)
	defer buf.(*Buffer).Release()

	require.NoError(t, buf.Write(0, []byte("hello")))
	require.True(t, buf.IsDirty())

	var flushed chunkkey.Key
	err = m.Checkpoint(func(k chunkkey.Key, data []byte) error {
		flushed = k
		require.Equal(t, []byte("hello"), data[:5])
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, key, flushed)
	require.False(t, buf.IsDirty())
}

func TestDeletePrefixRemovesMatchingChunksOnly(t *testing.T) {
	m := NewManager(testLoc(), 4096, 16, 16*4096*4)
	a := chunkkey.New(1, 1, 1, 0)
	b := chunkkey.New(1, 1, 2, 0)
	c := chunkkey.New(2, 1, 1, 0)
	for _, k := range []chunkkey.Key{a, b, c} {
		buf, err := m.CreateChunkBuffer(k, 4096, 1)
		require.NoError(t, err)
		buf.(*Buffer).Release()
	}

	n, err := m.DeletePrefix([]int32{1})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, m.IsResident(a))
	require.False(t, m.IsResident(b))
	require.True(t, m.IsResident(c))
}

func TestMemoryInfoPageAccountingInvariant(t *testing.T) {
	m := NewManager(testLoc(), 4096, 4, 4*4096)
	key := chunkkey.New(1, 1, 1, 0)
	buf, err := m.CreateChunkBuffer(key, 4096, 2)
	require.NoError(t, err)
	defer buf.(*Buffer).Release()

	info := m.MemoryInfo()
	total := 0
	for _, md := range info.NodeMemoryData {
		total += md.NumPages
		require.NotEqual(t, buffermgr.Status(99), md.Status)
	}
	require.Equal(t, info.MaxNumPages, total)
}
