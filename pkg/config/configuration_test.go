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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lamina.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataDir = "/var/lib/lamina"
useGpus = true
numGpus = 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/lamina", cfg.DataDir)
	require.True(t, cfg.UseGpus)
	require.Equal(t, 2, cfg.NumGpus)
	require.Equal(t, 4096, cfg.PageSize)
	require.Equal(t, 1024, cfg.PagesPerSlab)
	require.Equal(t, 256, cfg.ChunkMutexShards)
}
