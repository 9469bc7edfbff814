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

package gpu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProbe struct{ free map[int]int64 }

func (f fakeProbe) DeviceFreeBytes(device int) (int64, error) { return f.free[device], nil }

func TestNoGpusYieldsNoopManager(t *testing.T) {
	m, err := NewManager(fakeProbe{}, 0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, m.NumDevices())
	require.Equal(t, int64(0), m.FreeBytes(0))
}

func TestReservationCarvedOffPerDevice(t *testing.T) {
	probe := fakeProbe{free: map[int]int64{0: 1000, 1: 500}}
	m, err := NewManager(probe, 2, 0, 200)
	require.NoError(t, err)
	require.Equal(t, 2, m.NumDevices())
	require.Equal(t, int64(800), m.FreeBytes(0))
	require.Equal(t, int64(300), m.FreeBytes(1))
}

func TestReservationNeverNegative(t *testing.T) {
	probe := fakeProbe{free: map[int]int64{0: 100}}
	m, err := NewManager(probe, 1, 0, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(0), m.FreeBytes(0))
}
