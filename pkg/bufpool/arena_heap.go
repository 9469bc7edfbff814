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

package bufpool

// heapArena backs slabs with ordinary Go slices. Used for the GPU
// level's host-side shadow pool and on platforms without mmap support.
type heapArena struct{}

func (heapArena) newSlab(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (heapArena) freeSlab(b []byte) {}

// locationHint is the subset of chunkkey.Location the arena
// constructor needs, kept separate so this file has no import of
// package chunkkey.
type locationHint struct {
	level  int
	device int
}

const levelCPU = 1
