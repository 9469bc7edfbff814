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

// Package importer specifies the contract an external bulk-load
// collaborator implements against the core. Nothing in this package
// parses an import file format or runs an import; it only describes
// how such a component is expected to call into DataManager.
package importer

import "sync"

// Session identifies the (database, table) an insert batch targets.
type Session struct {
	DB    int32
	Table int32
}

// Batch is an opaque insert payload; its shape is entirely up to the
// importer implementation. The core only ever receives it back
// through InsertDataLoader and never inspects it.
type Batch any

// InsertDataLoader is the callback interface an importer hands to
// the core (or vice versa, depending on wiring) to feed decoded rows
// into the buffer pyramid as chunks. Callers must follow success with
// a checkpoint of the session's table, and failure with a rollback of
// it, for the core's table-epoch atomicity guarantee to hold.
type InsertDataLoader interface {
	InsertData(session Session, batch Batch) error
}

// LoadFailedFlag is a shared, shared-mutex-guarded error flag. The
// core exposes no cancellation token of its own; parallel import
// workers are expected to poll this flag between batches and stop
// early once one of them sets it.
type LoadFailedFlag struct {
	mu     sync.RWMutex
	failed bool
	cause  error
}

// Set marks the load as failed, recording the first cause only.
func (f *LoadFailedFlag) Set(cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.failed {
		f.failed = true
		f.cause = cause
	}
}

// IsSet reports whether the load has been marked failed, and the
// recorded cause if so.
func (f *LoadFailedFlag) IsSet() (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.failed, f.cause
}
