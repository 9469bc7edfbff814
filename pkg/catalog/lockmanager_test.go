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

package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecursiveReadLockDoesNotDeadlock(t *testing.T) {
	lm := &LockManager{}
	t1, unlock1 := lm.ReadLock(NewTicket())
	defer unlock1()
	_, unlock2 := lm.ReadLock(t1)
	defer unlock2()
}

func TestRecursiveWriteLockDoesNotDeadlock(t *testing.T) {
	lm := &LockManager{}
	t1, unlock1 := lm.WriteLock(NewTicket())
	defer unlock1()
	_, unlock2 := lm.WriteLock(t1)
	defer unlock2()
}

func TestPersistenceGuardTakesReadThenPersistence(t *testing.T) {
	lm := &LockManager{}
	ticket, unlock := lm.PersistenceGuard(NewTicket())
	defer unlock()
	require.True(t, ticket.read)
	require.True(t, ticket.persistence)
}

func TestPersistenceGuardReentrantOnSameTicket(t *testing.T) {
	lm := &LockManager{}
	t1, unlock1 := lm.PersistenceGuard(NewTicket())
	defer unlock1()
	_, unlock2 := lm.PersistenceGuard(t1)
	defer unlock2()
}

func TestWriteLockExcludesConcurrentReader(t *testing.T) {
	lm := &LockManager{}
	_, unlockWrite := lm.WriteLock(NewTicket())

	acquired := make(chan struct{})
	go func() {
		_, unlock := lm.ReadLock(NewTicket())
		defer unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired the shared lock while a writer held it")
	case <-time.After(20 * time.Millisecond):
	}
	unlockWrite()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired the shared lock after the writer released it")
	}
}
