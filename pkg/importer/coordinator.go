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

package importer

import "github.com/laminadb/lamina/pkg/chunkkey"

// TableStore is the slice of DataManager a Coordinator needs: commit
// a table's buffered writes to disk, or discard them.
type TableStore interface {
	CheckpointTable(db, table int32) error
	DeleteChunksWithPrefix(prefix []int32, level *chunkkey.Level) error
}

// Coordinator drives an InsertDataLoader through one session, then
// enforces the commit/rollback half of the contract: a successful
// InsertData is followed by a table checkpoint, a failing one by
// discarding whatever that session wrote to the cache levels (disk
// holds only what a prior checkpoint already committed, so rollback
// never touches it).
type Coordinator struct {
	store  TableStore
	loader InsertDataLoader
	failed *LoadFailedFlag
}

// NewCoordinator builds a Coordinator over store and loader, sharing
// failed across every session so concurrent workers observe the same
// abort signal.
func NewCoordinator(store TableStore, loader InsertDataLoader, failed *LoadFailedFlag) *Coordinator {
	return &Coordinator{store: store, loader: loader, failed: failed}
}

// Run calls InsertData for session and batch, then checkpoints on
// success or rolls back and sets failed on error.
func (c *Coordinator) Run(session Session, batch Batch) error {
	if failed, cause := c.failed.IsSet(); failed {
		return cause
	}
	if err := c.loader.InsertData(session, batch); err != nil {
		c.failed.Set(err)
		if rbErr := c.rollback(session); rbErr != nil {
			return rbErr
		}
		return err
	}
	if err := c.store.CheckpointTable(session.DB, session.Table); err != nil {
		c.failed.Set(err)
		return err
	}
	return nil
}

func (c *Coordinator) rollback(session Session) error {
	cpu := chunkkey.CPU
	gpu := chunkkey.GPU
	prefix := []int32{session.DB, session.Table}
	if err := c.store.DeleteChunksWithPrefix(prefix, &cpu); err != nil {
		return err
	}
	return c.store.DeleteChunksWithPrefix(prefix, &gpu)
}
