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

package datamgr

import "github.com/laminadb/lamina/pkg/buffermgr"

// MigrationView narrows DataManager to the single operation a database
// conversion pass needs: a whole-DB checkpoint with no table scoping.
// This is deliberately not part of DataManager's general API — ordinary
// callers checkpoint one table at a time with CheckpointTable, and a
// whole-DB flush is expensive enough that it should only ever run from
// the conversion path that asked for this view.
type MigrationView struct {
	dm *DataManager
}

// Migration narrows dm to a MigrationView.
func (dm *DataManager) Migration() MigrationView {
	return MigrationView{dm: dm}
}

// Checkpoint flushes every dirty chunk at every cache level down to
// disk, across every table, advancing each table's epoch as it goes.
func (v MigrationView) Checkpoint() error {
	dm := v.dm
	for _, mgr := range append([]buffermgr.Manager{dm.cpu}, gpuManagers(dm)...) {
		if err := dm.pushDown(mgr, nil); err != nil {
			return err
		}
	}
	return dm.disk.Checkpoint(nil)
}

func gpuManagers(dm *DataManager) []buffermgr.Manager {
	out := make([]buffermgr.Manager, len(dm.gpus))
	for i, g := range dm.gpus {
		out[i] = g
	}
	return out
}
