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

// Package datamgr is the front door to the buffer pyramid. DataManager
// routes chunk requests to the right AbstractBufferManager by
// (level, device), owns every pool's lifecycle, and exposes checkpoint
// and memory telemetry across the whole pyramid.
package datamgr

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/laminadb/lamina/pkg/bufpool"
	"github.com/laminadb/lamina/pkg/buffermgr"
	"github.com/laminadb/lamina/pkg/chunkkey"
	"github.com/laminadb/lamina/pkg/config"
	"github.com/laminadb/lamina/pkg/diskstore"
	"github.com/laminadb/lamina/pkg/gpu"
	"github.com/laminadb/lamina/pkg/moerr"
	"github.com/laminadb/lamina/pkg/sysmem"
)

// DataManager owns the whole DISK → CPU → GPU[0..N) pyramid.
type DataManager struct {
	cfg config.RuntimeConfig

	disk *diskstore.Store
	cpu  *bufpool.Manager
	gpus []*bufpool.Manager

	locks      *lockTable
	readerPool *ants.Pool
}

// New builds a DataManager from cfg, probing system memory for the CPU
// budget when cfg.CPUBudgetBytes is unset and, when cfg.UseGpus is
// true, querying gpuProbe for each device's free memory.
func New(cfg config.RuntimeConfig, sysProbe sysmem.Prober, gpuProbe gpu.Probe) (*DataManager, error) {
	disk, err := diskstore.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	cpuBudget := cfg.CPUBudgetBytes
	if cpuBudget == 0 {
		usage, err := sysProbe.Usage()
		if err != nil {
			disk.Close()
			return nil, moerr.NewIOFailure(err, "probing system memory")
		}
		cpuBudget = sysmem.DefaultCPUBudget(usage)
	}
	cpu := bufpool.NewManager(chunkkey.Location{Level: chunkkey.CPU, Device: 0}, cfg.PageSize, cfg.PagesPerSlab, cpuBudget)

	numGpus := 0
	if cfg.UseGpus {
		numGpus = cfg.NumGpus
	}
	gpuMgr, err := gpu.NewManager(gpuProbe, numGpus, cfg.StartGpu, cfg.ReservedGpuMemBytes)
	if err != nil {
		disk.Close()
		return nil, err
	}
	gpus := make([]*bufpool.Manager, gpuMgr.NumDevices())
	for d := 0; d < gpuMgr.NumDevices(); d++ {
		budget := gpuMgr.FreeBytes(cfg.StartGpu + d)
		if cfg.GpuBudgetBytes > 0 && cfg.GpuBudgetBytes < budget {
			budget = cfg.GpuBudgetBytes
		}
		gpus[d] = bufpool.NewManager(chunkkey.Location{Level: chunkkey.GPU, Device: d}, cfg.PageSize, cfg.PagesPerSlab, budget)
	}

	poolSize := cfg.NumReaderThreads
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	readerPool, err := ants.NewPool(poolSize)
	if err != nil {
		disk.Close()
		return nil, moerr.NewIOFailure(err, "creating reader pool")
	}

	return &DataManager{
		cfg:        cfg,
		disk:       disk,
		cpu:        cpu,
		gpus:       gpus,
		locks:      newLockTable(cfg.ChunkMutexShards),
		readerPool: readerPool,
	}, nil
}

// Close releases the reader pool and closes the disk catalog.
func (dm *DataManager) Close() error {
	dm.readerPool.Release()
	return dm.disk.Close()
}

// ChunkMutex hands out the named mutex for key, creating it if this is
// the first live reference. The manager hands out the mutex but does
// not enforce lock ordering; callers decide Lock vs RLock. Callers
// must call ReleaseChunkMutex with the same key once they are done
// referencing it, in addition to unlocking whatever they locked.
func (dm *DataManager) ChunkMutex(key chunkkey.Key) *sync.RWMutex {
	return &dm.locks.Acquire(key).RWMutex
}

// ReleaseChunkMutex drops one reference obtained from ChunkMutex.
func (dm *DataManager) ReleaseChunkMutex(key chunkkey.Key) {
	dm.locks.Release(key)
}

func (dm *DataManager) managerAt(level chunkkey.Level, device int) (buffermgr.Manager, error) {
	switch level {
	case chunkkey.Disk:
		return dm.disk, nil
	case chunkkey.CPU:
		return dm.cpu, nil
	case chunkkey.GPU:
		if device < 0 || device >= len(dm.gpus) {
			return nil, moerr.NewNotFound("no GPU device %d configured", device)
		}
		return dm.gpus[device], nil
	default:
		panic(moerr.NewInvariant("unknown memory level %d", level))
	}
}

func (dm *DataManager) allManagers() []buffermgr.Manager {
	out := []buffermgr.Manager{dm.disk, dm.cpu}
	for _, g := range dm.gpus {
		out = append(out, g)
	}
	return out
}

// lowerLevels returns, in pull-up search order, the managers below
// level for device (CPU's only lower level is disk; a GPU device's
// lower levels are CPU then disk).
func (dm *DataManager) lowerLevels(level chunkkey.Level) []buffermgr.Manager {
	switch level {
	case chunkkey.GPU:
		return []buffermgr.Manager{dm.cpu, dm.disk}
	case chunkkey.CPU:
		return []buffermgr.Manager{dm.disk}
	default:
		return nil
	}
}
