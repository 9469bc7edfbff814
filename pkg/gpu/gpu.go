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

// Package gpu models GPU memory residency only; no compute kernel of
// any kind lives here. A Manager tracks, per device, how much memory
// DataManager may hand out to the GPU-level buffer pools after the
// reservation is carved off.
package gpu

// Manager reports free memory per GPU device, once at startup.
type Manager interface {
	NumDevices() int
	// FreeBytes returns the budget available to device's buffer pool,
	// i.e. the device's free memory minus the reservation.
	FreeBytes(device int) int64
}

// Probe queries a real device's free memory. Production builds plug
// in a CUDA/ROCm-backed implementation; this module only needs the
// interface to size pools, per the Non-goal excluding compute kernels.
type Probe interface {
	DeviceFreeBytes(device int) (int64, error)
}

// none is the Manager used when useGpus is false: zero devices, every
// query a no-op.
type none struct{}

func (none) NumDevices() int          { return 0 }
func (none) FreeBytes(device int) int64 { return 0 }

// NewManager builds a Manager for [startGpu, startGpu+numGpus) using
// probe to size each device, carving off reservedBytes per device and
// never returning it. numGpus <= 0 yields the no-op Manager.
func NewManager(probe Probe, numGpus, startGpu int, reservedBytes int64) (Manager, error) {
	if numGpus <= 0 {
		return none{}, nil
	}
	m := &manager{startGpu: startGpu, budgets: make([]int64, numGpus)}
	for i := 0; i < numGpus; i++ {
		free, err := probe.DeviceFreeBytes(startGpu + i)
		if err != nil {
			return nil, err
		}
		budget := free - reservedBytes
		if budget < 0 {
			budget = 0
		}
		m.budgets[i] = budget
	}
	return m, nil
}

type manager struct {
	startGpu int
	budgets  []int64
}

func (m *manager) NumDevices() int { return len(m.budgets) }

func (m *manager) FreeBytes(device int) int64 {
	idx := device - m.startGpu
	if idx < 0 || idx >= len(m.budgets) {
		return 0
	}
	return m.budgets[idx]
}
