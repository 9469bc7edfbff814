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

//go:build linux

package sysmem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/require"
)

func TestParseMeminfoAppliesKBUnit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meminfo")
	require.NoError(t, os.WriteFile(path, []byte(
		"MemTotal:       16384000 kB\n"+
			"MemFree:         2048000 kB\n"+
			"Buffers:            1000 kB\n"+
			"Cached:           500000 kB\n"+
			"HugePages_Total:       0\n",
	), 0o644))

	vals, err := parseMeminfo(path)
	require.NoError(t, err)
	require.Equal(t, uint64(16384000*1024), vals["MemTotal"])
	require.Equal(t, uint64(0), vals["HugePages_Total"])
}

func TestNewProberStubbedForTest(t *testing.T) {
	stubs := gostub.Stub(&NewProber, func() Prober { return fakeProber{} })
	defer stubs.Reset()

	u, err := NewProber().Usage()
	require.NoError(t, err)
	require.Equal(t, uint64(42), u.TotalBytes)
}

type fakeProber struct{}

func (fakeProber) Usage() (Usage, error) { return Usage{TotalBytes: 42}, nil }
