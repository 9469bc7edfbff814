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

package privilege

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laminadb/lamina/pkg/moerr"
)

func TestGrantThenRevokeIsIdentity(t *testing.T) {
	g := New()
	alice, err := g.CreateUser("alice")
	require.NoError(t, err)

	obj := Object{Key: Key{PermissionType: 0, DBID: 1, ObjectID: 7}, Privileges: Select}
	require.NoError(t, g.GrantPrivileges(alice, obj))

	ok, err := g.CheckPrivileges(alice, Object{Key: obj.Key, Privileges: Select})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = g.RevokePrivileges(alice, obj)
	require.NoError(t, err)

	ok, err = g.CheckPrivileges(alice, Object{Key: obj.Key, Privileges: Select})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantRoleThenRevokeIsIdentityOnEffective(t *testing.T) {
	g := New()
	alice, err := g.CreateUser("alice")
	require.NoError(t, err)
	reader, err := g.CreateRole("reader")
	require.NoError(t, err)
	table := Object{Key: Key{DBID: 1, ObjectID: 7}, Privileges: Select}
	require.NoError(t, g.GrantPrivileges(reader, table))

	require.NoError(t, g.GrantRole(alice, reader))
	roles, err := g.GetRoles(alice, true)
	require.NoError(t, err)
	require.Equal(t, []string{"reader"}, roles)
	ok, err := g.CheckPrivileges(alice, table)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.RevokeRole(alice, reader))
	roles, err = g.GetRoles(alice, true)
	require.NoError(t, err)
	require.Empty(t, roles)
	ok, err = g.CheckPrivileges(alice, table)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantRoleSelfFailsWithCycleDetected(t *testing.T) {
	g := New()
	r1, err := g.CreateRole("r1")
	require.NoError(t, err)
	err = g.GrantRole(r1, r1)
	require.ErrorIs(t, err, moerr.CycleDetected)
}

func TestThreeRoleCycleFailsOnThirdGrant(t *testing.T) {
	g := New()
	r1, err := g.CreateRole("r1")
	require.NoError(t, err)
	r2, err := g.CreateRole("r2")
	require.NoError(t, err)
	r3, err := g.CreateRole("r3")
	require.NoError(t, err)

	require.NoError(t, g.GrantRole(r2, r1))
	require.NoError(t, g.GrantRole(r3, r2))
	err = g.GrantRole(r1, r3)
	require.ErrorIs(t, err, moerr.CycleDetected)
}

func TestWildcardGrantCoversNarrowerLookup(t *testing.T) {
	g := New()
	bob, err := g.CreateUser("bob")
	require.NoError(t, err)

	require.NoError(t, g.GrantPrivileges(bob, Object{
		Key:        Key{DBID: 1, ObjectID: -1},
		Privileges: Select,
	}))

	ok, err := g.CheckPrivileges(bob, Object{
		Key:        Key{DBID: 1, ObjectID: 42},
		Privileges: Select,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHasAnyPrivilegesOnlyDirectExcludesRolePropagated(t *testing.T) {
	g := New()
	alice, err := g.CreateUser("alice")
	require.NoError(t, err)
	reader, err := g.CreateRole("reader")
	require.NoError(t, err)
	require.NoError(t, g.GrantPrivileges(reader, Object{Key: Key{DBID: 1, ObjectID: 7}, Privileges: Select}))
	require.NoError(t, g.GrantRole(alice, reader))

	direct, err := g.HasAnyPrivileges(alice, Object{Key: Key{DBID: 1, ObjectID: 7}, Privileges: Select}, true)
	require.NoError(t, err)
	require.False(t, direct, "role-propagated privilege must not show up as a direct grant")

	effective, err := g.HasAnyPrivileges(alice, Object{Key: Key{DBID: 1, ObjectID: 7}, Privileges: Select}, false)
	require.NoError(t, err)
	require.True(t, effective)
}

func TestRevokeAllOnDatabasePropagatesToDescendants(t *testing.T) {
	g := New()
	reader, err := g.CreateRole("reader")
	require.NoError(t, err)
	alice, err := g.CreateUser("alice")
	require.NoError(t, err)
	require.NoError(t, g.GrantPrivileges(reader, Object{Key: Key{DBID: 1, ObjectID: 7}, Privileges: Select}))
	require.NoError(t, g.GrantRole(alice, reader))

	require.NoError(t, g.RevokeAllOnDatabase(reader, 1))

	ok, err := g.CheckPrivileges(alice, Object{Key: Key{DBID: 1, ObjectID: 7}, Privileges: Select})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDestroyDetachesFromRolesBothDirections(t *testing.T) {
	g := New()
	reader, err := g.CreateRole("reader")
	require.NoError(t, err)
	aliceID, err := g.CreateUser("alice")
	require.NoError(t, err)
	require.NoError(t, g.GrantRole(aliceID, reader))

	require.NoError(t, g.Destroy(aliceID))

	readerNode, _ := g.arena.get(int(reader))
	require.Empty(t, readerNode.grantees)
}
