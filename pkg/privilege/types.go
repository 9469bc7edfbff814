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

// Package privilege implements the recursive grant graph: Grantees
// (Users and Roles) holding direct and effective privileges over
// DBObjects, with role membership forming a cycle-free directed graph.
package privilege

import "fmt"

// Bitset is the fixed-width privilege bitfield. Bits compose with
// bitwise OR on grant and bitwise AND-NOT on revoke.
type Bitset uint32

const (
	Select Bitset = 1 << iota
	Insert
	Update
	Delete
	Truncate
	Alter
	Drop
	Create
	CreateTable
	DropTable
	AlterTable
	CreateView
	DropView
	CreateDB
	DropDB

	All Bitset = (1 << iota) - 1
)

// HasAny reports whether any bit is set.
func (b Bitset) HasAny() bool { return b != 0 }

// Contains reports whether every bit in want is set in b.
func (b Bitset) Contains(want Bitset) bool { return want == b&want }

// Key identifies a privilege entry: a permission type scoped to a
// database and, within it, an object. DBID == -1 or ObjectID == -1
// is a wildcard matching any narrower key during lookup.
type Key struct {
	PermissionType int32
	DBID           int32
	ObjectID       int32
}

func (k Key) String() string {
	return fmt.Sprintf("(perm=%d, db=%d, obj=%d)", k.PermissionType, k.DBID, k.ObjectID)
}

// widenObject returns the key with ObjectID set to -1, the next step in
// the exact → objectId=-1 → dbId=-1 widening sequence.
func (k Key) widenObject() Key { k.ObjectID = -1; return k }

// widenDB returns the key with DBID set to -1.
func (k Key) widenDB() Key { k.DBID = -1; return k }

// Object is a grant record: the key it was granted under, the
// object's owner and display name, and the granted privilege bits.
type Object struct {
	Key        Key
	Owner      int32
	Name       string
	Privileges Bitset
}

// Grant ORs other's privilege bits into o in place.
func (o *Object) Grant(other Object) { o.Privileges |= other.Privileges }

// Revoke clears other's privilege bits from o in place.
func (o *Object) Revoke(other Object) { o.Privileges &^= other.Privileges }

func cloneObject(o Object) *Object {
	c := o
	return &c
}
