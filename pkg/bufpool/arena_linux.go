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

package bufpool

import "golang.org/x/sys/unix"

// mmapArena backs slabs with anonymous mmap regions so the CPU level's
// budget is visible to the OS as real resident memory, and so pages can
// be handed back with munmap instead of waiting on the GC.
type mmapArena struct{}

func newArena(loc locationHint) arena {
	if loc.level == levelCPU {
		return mmapArena{}
	}
	return heapArena{}
}

func (mmapArena) newSlab(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (mmapArena) freeSlab(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munmap(b)
}
