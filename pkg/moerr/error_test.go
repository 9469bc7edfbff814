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

package moerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesSentinel(t *testing.T) {
	err := NewAllocationCapped("cpu pool full after eviction")
	require.True(t, errors.Is(err, AllocationCapped))
	require.False(t, errors.Is(err, NotFound))
}

func TestIOFailureWrapsCause(t *testing.T) {
	cause := errors.New("disk offline")
	err := NewIOFailure(cause, "checkpoint table %d", 7)
	require.True(t, errors.Is(err, IOFailure))
	require.ErrorIs(t, err, cause)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "cycle detected", KindCycleDetected.String())
}
