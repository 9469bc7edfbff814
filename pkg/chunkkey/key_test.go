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

package chunkkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasPrefix(t *testing.T) {
	k := New(1, 7, 3, 0)
	require.True(t, k.HasPrefix([]int32{1}))
	require.True(t, k.HasPrefix([]int32{1, 7}))
	require.True(t, k.HasPrefix([]int32{1, 7, 3}))
	require.False(t, k.HasPrefix([]int32{1, 8}))
	require.True(t, k.HasPrefix(nil))
}

func TestShardStable(t *testing.T) {
	k := New(1, 7, 3, 0)
	s1 := k.Shard(16)
	s2 := k.Shard(16)
	require.Equal(t, s1, s2)
	require.GreaterOrEqual(t, s1, 0)
	require.Less(t, s1, 16)
}

func TestMetadataObserve(t *testing.T) {
	m := NewMetadata()
	m.Observe(0, []byte("b"))
	m.Observe(1, nil)
	m.Observe(2, []byte("a"))
	m.Observe(3, []byte("c"))

	require.Equal(t, int64(4), m.RowCount)
	require.True(t, m.HasNulls())
	require.Equal(t, []byte("a"), m.Min)
	require.Equal(t, []byte("c"), m.Max)
	require.InDelta(t, 3, m.DistinctEstimate(), 1)
}
