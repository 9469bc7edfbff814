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

// Package config holds the RuntimeConfig loaded at process startup.
// Nothing in this module reaches for a global; every knob the original
// exposed as a process-global (g_max_import_threads and friends) lives
// here instead and is threaded explicitly into datamgr.New.
package config

import "github.com/BurntSushi/toml"

// RuntimeConfig is decoded from a single toml file passed on the
// command line.
type RuntimeConfig struct {
	// DataDir is the root of the on-disk chunk store.
	DataDir string `toml:"dataDir"`

	// PageSize is the page size in bytes for every level's slabs.
	// Default 4096 when zero.
	PageSize int `toml:"pageSize"`

	// PagesPerSlab is the number of pages carved out of one slab
	// allocation. Default 1024 when zero.
	PagesPerSlab int `toml:"pagesPerSlab"`

	// CPUBudgetBytes is the CPU-level pool's byte budget. Zero means
	// "probe system memory and pick a conservative default," mirroring
	// the original's "0 means autodetect" convention.
	CPUBudgetBytes int64 `toml:"cpuBudgetBytes"`

	// NumReaderThreads sizes the ants.Pool that DataManager creates and
	// releases. Pull-up copies and checkpoint flushes run synchronously
	// and do not go through it. Zero means runtime.NumCPU().
	NumReaderThreads int `toml:"numReaderThreads"`

	// ChunkMutexShards is the number of shards in datamgr's per-chunk
	// mutex table. Default 256 when zero.
	ChunkMutexShards int `toml:"chunkMutexShards"`

	// UseGpus enables the GPU memory-residency levels.
	UseGpus bool `toml:"useGpus"`

	// NumGpus, StartGpu and ReservedGpuMemBytes size the GPU levels
	// when UseGpus is true; unused otherwise.
	NumGpus           int   `toml:"numGpus"`
	StartGpu          int   `toml:"startGpu"`
	ReservedGpuMemBytes int64 `toml:"reservedGpuMemBytes"`
	GpuBudgetBytes      int64 `toml:"gpuBudgetBytes"`

	// LogPath, if set, routes structured logs through a rotated file
	// sink instead of stderr. See package logging.
	LogPath    string `toml:"logPath"`
	LogLevel   string `toml:"logLevel"`
	MaxLogSizeMB int  `toml:"maxLogSizeMB"`
	MaxLogAgeDays int `toml:"maxLogAgeDays"`
}

// Defaults fills in the zero-value knobs this module treats as "pick a
// sane default" rather than "disable the feature."
func (c *RuntimeConfig) Defaults() {
	if c.PageSize == 0 {
		c.PageSize = 4096
	}
	if c.PagesPerSlab == 0 {
		c.PagesPerSlab = 1024
	}
	if c.ChunkMutexShards == 0 {
		c.ChunkMutexShards = 256
	}
	if c.MaxLogSizeMB == 0 {
		c.MaxLogSizeMB = 100
	}
	if c.MaxLogAgeDays == 0 {
		c.MaxLogAgeDays = 28
	}
}

// Load decodes a RuntimeConfig from the toml file at path and applies
// Defaults.
func Load(path string) (RuntimeConfig, error) {
	var cfg RuntimeConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return RuntimeConfig{}, err
	}
	cfg.Defaults()
	return cfg, nil
}
