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

// arena allocates the raw byte storage backing one slab. The CPU level
// uses an mmap-backed arena (arena_linux.go) so slab memory can be
// dropped back to the OS; other levels and platforms fall back to the
// heap (arena_other.go).
type arena interface {
	// newSlab returns a zeroed byte slice of exactly size bytes.
	newSlab(size int) ([]byte, error)
	// freeSlab releases storage returned by newSlab. It is a no-op for
	// heap-backed arenas.
	freeSlab(b []byte)
}
