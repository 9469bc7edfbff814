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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laminadb/lamina/pkg/chunkkey"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestCreateGetDeleteRoundTrip(t *testing.T) {
	s := openTestStore(t)
	key := chunkkey.New(1, 7, 3, 0)

	buf, err := s.CreateChunkBuffer(key, 4096, 1)
	require.NoError(t, err)
	require.NoError(t, buf.Write(0, []byte("disk-resident")))
	buf.(*Buffer).Release()

	require.NoError(t, s.Checkpoint(nil))

	got, ok := s.GetChunkBuffer(key)
	require.True(t, ok)
	require.Equal(t, []byte("disk-resident"), got.Bytes()[:len("disk-resident")])
	got.(*Buffer).Release()

	require.NoError(t, s.DeleteChunk(key))
	require.False(t, s.IsResident(key))
}

func TestGetChunkBufferAfterReopenDecompressesPageFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	key := chunkkey.New(1, 7, 3, 0)
	buf, err := s.CreateChunkBuffer(key, 4096, 1)
	require.NoError(t, err)
	require.NoError(t, buf.Write(0, []byte("disk-resident")))
	buf.(*Buffer).Release()
	require.NoError(t, s.Checkpoint(nil))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s2.Close()) })

	got, ok := s2.GetChunkBuffer(key)
	require.True(t, ok)
	require.Equal(t, []byte("disk-resident"), got.Bytes()[:len("disk-resident")])
	got.(*Buffer).Release()
}

func TestCheckpointAdvancesEpoch(t *testing.T) {
	s := openTestStore(t)
	key := chunkkey.New(2, 5, 0, 0)

	buf, err := s.CreateChunkBuffer(key, 4096, 1)
	require.NoError(t, err)
	require.NoError(t, buf.Write(0, []byte("v1")))

	before := s.TableEpoch(2, 5)
	require.NoError(t, s.Checkpoint(nil))
	require.Greater(t, s.TableEpoch(2, 5), before)
	buf.(*Buffer).Release()
}

func TestMetadataVecForKeyPrefix(t *testing.T) {
	s := openTestStore(t)
	a := chunkkey.New(1, 1, 1, 0)
	b := chunkkey.New(1, 1, 2, 0)
	c := chunkkey.New(2, 1, 1, 0)
	for _, k := range []chunkkey.Key{a, b, c} {
		buf, err := s.CreateChunkBuffer(k, 4096, 1)
		require.NoError(t, err)
		buf.(*Buffer).Release()
	}

	entries, err := s.MetadataVecForKeyPrefix([]int32{1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestDeletePinnedChunkFails(t *testing.T) {
	s := openTestStore(t)
	key := chunkkey.New(1, 1, 1, 0)
	buf, err := s.CreateChunkBuffer(key, 4096, 1)
	require.NoError(t, err)
	defer buf.(*Buffer).Release()

	err = s.DeleteChunk(key)
	require.Error(t, err)
}
