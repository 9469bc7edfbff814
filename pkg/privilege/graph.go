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
	"sort"
	"sync"

	"github.com/laminadb/lamina/pkg/moerr"
)

// GranteeID identifies a grantee (User or Role) within a Graph.
type GranteeID int

// Graph is the authoritative grant graph. All grantees live in a
// central arena keyed by dense integer id; role membership is a set
// of id → id edges rather than pointers, so there is no ownership
// cycle to break on teardown.
//
// mu only protects the arena's own internal consistency (concurrent
// Lookup/CreateUser/etc. calls racing each other); it is not the lock
// callers are expected to hold. A caller that wants the catalog-wide
// read/write ordering described for privilege checks and mutations
// takes that through catalog.LockManager instead — see bootstrapAdmin
// in cmd/lamina-core for the expected pattern of holding a catalog
// Ticket across a sequence of Graph calls.
type Graph struct {
	mu    sync.RWMutex
	arena *arena
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{arena: newArena()}
}

// CreateUser creates a new User grantee named name.
func (g *Graph) CreateUser(name string) (GranteeID, error) {
	return g.create(UserKind, name)
}

// CreateRole creates a new Role grantee named name.
func (g *Graph) CreateRole(name string) (GranteeID, error) {
	return g.create(RoleKind, name)
}

func (g *Graph) create(kind Kind, name string) (GranteeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.arena.getByName(name); exists {
		return 0, moerr.NewAlreadyExists("grantee %q already exists", name)
	}
	n := g.arena.create(kind, name)
	return GranteeID(n.id), nil
}

// Lookup resolves a grantee by name.
func (g *Graph) Lookup(name string) (GranteeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.arena.getByName(name)
	if !ok {
		return 0, false
	}
	return GranteeID(n.id), true
}

// Destroy removes a grantee, first detaching it from every role edge
// in either direction.
func (g *Graph) Destroy(id GranteeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.arena.get(int(id))
	if !ok {
		return moerr.NewNotFound("grantee %d not found", id)
	}
	g.arena.destroy(n)
	return nil
}

func (g *Graph) mustGet(id GranteeID) (*grantee, error) {
	n, ok := g.arena.get(int(id))
	if !ok {
		return nil, moerr.NewNotFound("grantee %d not found", id)
	}
	return n, nil
}

// GrantPrivileges ORs object's privilege bits into grantee's direct
// privileges at object.Key, creating the entry if absent, then
// recomputes and propagates effective privileges.
func (g *Graph) GrantPrivileges(id GranteeID, object Object) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.mustGet(id)
	if err != nil {
		return err
	}
	if existing, ok := n.direct[object.Key]; ok {
		existing.Grant(object)
	} else {
		n.direct[object.Key] = cloneObject(object)
	}
	g.updatePrivileges(n)
	return nil
}

// RevokePrivileges subtracts object's privilege bits from grantee's
// direct privileges at object.Key. If the residual bitset is empty
// the entry is erased. Fails with NotFound if the grantee has no
// entry at that key.
func (g *Graph) RevokePrivileges(id GranteeID, object Object) (*Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.mustGet(id)
	if err != nil {
		return nil, err
	}
	existing, ok := n.direct[object.Key]
	if !ok || !existing.Privileges.HasAny() {
		return nil, moerr.NewNotFound("grantee %q has no privileges on %s", n.name, object.Key)
	}
	existing.Revoke(object)
	var result *Object
	if !existing.Privileges.HasAny() {
		delete(n.direct, object.Key)
	} else {
		c := *existing
		result = &c
	}
	g.updatePrivileges(n)
	return result, nil
}

// GrantRole grants role to grantee: inserts the bidirectional edge
// role ⇄ grantee and recomputes/propagates effective privileges.
// Fails if the edge already exists or would create a cycle.
func (g *Graph) GrantRole(granteeID, roleID GranteeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.mustGet(granteeID)
	if err != nil {
		return err
	}
	role, err := g.mustGet(roleID)
	if err != nil {
		return err
	}
	if role.kind != RoleKind {
		panic(moerr.NewInvariant("grantee %q is not a role", role.name))
	}
	if _, already := n.roles[role.id]; already {
		return moerr.NewAlreadyExists("role %q already granted to %q", role.name, n.name)
	}
	if g.wouldCycle(n, role) {
		return moerr.NewCycleDetected("granting role %q to %q creates a cycle", role.name, n.name)
	}
	n.roles[role.id] = struct{}{}
	role.grantees[n.id] = struct{}{}
	g.updatePrivileges(n)
	return nil
}

// RevokeRole removes the role ⇄ grantee edge and recomputes/propagates.
func (g *Graph) RevokeRole(granteeID, roleID GranteeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.mustGet(granteeID)
	if err != nil {
		return err
	}
	role, err := g.mustGet(roleID)
	if err != nil {
		return err
	}
	delete(n.roles, role.id)
	delete(role.grantees, n.id)
	g.updatePrivileges(n)
	return nil
}

// wouldCycle walks want's own descendants (its outbound grantees,
// transitively, treating want itself as the root); if role appears
// among them, want is already downstream of role, so granting role to
// want would close a cycle. It never recurses into a User, since
// users have no outbound edges.
func (g *Graph) wouldCycle(want *grantee, role *grantee) bool {
	visited := map[int]struct{}{}
	stack := []*grantee{want}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[cur.id]; seen {
			continue
		}
		visited[cur.id] = struct{}{}
		if cur.id == role.id {
			return true
		}
		if cur.isUser() {
			continue
		}
		for granteeID := range cur.grantees {
			if child, ok := g.arena.get(granteeID); ok {
				stack = append(stack, child)
			}
		}
	}
	return false
}

// CheckPrivileges returns true iff requested's privileges are a
// subset of the grantee's effective privileges at some key obtained
// by progressively widening requested.Key: exact, then objectId=-1,
// then dbId=-1.
func (g *Graph) CheckPrivileges(id GranteeID, requested Object) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.mustGet(id)
	if err != nil {
		return false, err
	}
	return widen(requested.Key, func(k Key) bool {
		if obj, ok := n.effective[k]; ok {
			return obj.Privileges.Contains(requested.Privileges)
		}
		return false
	}), nil
}

// HasAnyPrivileges is CheckPrivileges's "nonempty intersection"
// cousin: true iff the grantee's privileges at some widened key
// overlap requested's at all. onlyDirect selects direct vs effective.
func (g *Graph) HasAnyPrivileges(id GranteeID, requested Object, onlyDirect bool) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.mustGet(id)
	if err != nil {
		return false, err
	}
	privs := n.effective
	if onlyDirect {
		privs = n.direct
	}
	return widen(requested.Key, func(k Key) bool {
		obj, ok := privs[k]
		return ok && (obj.Privileges & requested.Privileges).HasAny()
	}), nil
}

// widen calls match against key, then key with ObjectID widened to
// -1, then additionally DBID widened to -1, short-circuiting true.
func widen(key Key, match func(Key) bool) bool {
	if match(key) {
		return true
	}
	if key.ObjectID != -1 {
		widened := key.widenObject()
		if match(widened) {
			return true
		}
		key = widened
	}
	if key.DBID != -1 {
		if match(key.widenDB()) {
			return true
		}
	}
	return false
}

// RevokeAllOnDatabase drops every direct and effective entry whose
// key.DBID matches dbID. If grantee is a role, it recurses onto
// every grantee the role has been granted to.
func (g *Graph) RevokeAllOnDatabase(id GranteeID, dbID int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.mustGet(id)
	if err != nil {
		return err
	}
	g.revokeAllOnDatabase(n, dbID)
	return nil
}

func (g *Graph) revokeAllOnDatabase(n *grantee, dbID int32) {
	for k := range n.effective {
		if k.DBID == dbID {
			delete(n.effective, k)
		}
	}
	for k := range n.direct {
		if k.DBID == dbID {
			delete(n.direct, k)
		}
	}
	g.updatePrivileges(n)
	if n.kind == RoleKind {
		for granteeID := range n.grantees {
			if child, ok := g.arena.get(granteeID); ok {
				g.revokeAllOnDatabase(child, dbID)
			}
		}
	}
}

// RenameDbObject updates the cached object name in both maps for the
// given grantee, recursing onto its grantees if it is a role.
func (g *Graph) RenameDbObject(id GranteeID, renamed Object) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.mustGet(id)
	if err != nil {
		return err
	}
	g.renameDbObject(n, renamed)
	return nil
}

func (g *Graph) renameDbObject(n *grantee, renamed Object) {
	if obj, ok := n.direct[renamed.Key]; ok {
		obj.Name = renamed.Name
	}
	if obj, ok := n.effective[renamed.Key]; ok {
		obj.Name = renamed.Name
	}
	if n.kind == RoleKind {
		for granteeID := range n.grantees {
			if child, ok := g.arena.get(granteeID); ok {
				g.renameDbObject(child, renamed)
			}
		}
	}
}

// ReassignObjectOwner rewrites Owner on every direct and effective
// entry at key, for the given grantee only.
func (g *Graph) ReassignObjectOwner(id GranteeID, key Key, newOwner int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.mustGet(id)
	if err != nil {
		return err
	}
	if obj, ok := n.direct[key]; ok {
		obj.Owner = newOwner
	}
	if obj, ok := n.effective[key]; ok {
		obj.Owner = newOwner
	}
	return nil
}

// ReassignObjectOwners rewrites Owner on every entry under dbID whose
// current owner is in oldOwners, across direct and effective maps.
// Database-wide entries (ObjectID == -1) are skipped.
func (g *Graph) ReassignObjectOwners(id GranteeID, oldOwners map[int32]struct{}, newOwner, dbID int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.mustGet(id)
	if err != nil {
		return err
	}
	reassign := func(m map[Key]*Object) {
		for k, obj := range m {
			if k.ObjectID == -1 || k.DBID != dbID {
				continue
			}
			if _, matches := oldOwners[obj.Owner]; matches {
				obj.Owner = newOwner
			}
		}
	}
	reassign(n.effective)
	reassign(n.direct)
	return nil
}

// GetRoles returns grantee's direct roles when onlyDirect is true, or
// the full transitive closure, sorted by name, otherwise.
func (g *Graph) GetRoles(id GranteeID, onlyDirect bool) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.mustGet(id)
	if err != nil {
		return nil, err
	}
	if onlyDirect {
		names := make([]string, 0, len(n.roles))
		for roleID := range n.roles {
			if role, ok := g.arena.get(roleID); ok {
				names = append(names, role.name)
			}
		}
		sort.Strings(names)
		return names, nil
	}
	seen := map[string]struct{}{}
	stack := []*grantee{n}
	visited := map[int]struct{}{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur.id]; ok {
			continue
		}
		visited[cur.id] = struct{}{}
		for roleID := range cur.roles {
			role, ok := g.arena.get(roleID)
			if !ok {
				continue
			}
			seen[role.name] = struct{}{}
			stack = append(stack, role)
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// HasRole reports whether grantee holds role, directly or
// transitively.
func (g *Graph) HasRole(id, roleID GranteeID) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, err := g.mustGet(id)
	if err != nil {
		return false, err
	}
	visited := map[int]struct{}{}
	stack := []*grantee{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.id == int(roleID) {
			return true, nil
		}
		if _, ok := visited[cur.id]; ok {
			continue
		}
		visited[cur.id] = struct{}{}
		for rID := range cur.roles {
			if r, ok := g.arena.get(rID); ok {
				stack = append(stack, r)
			}
		}
	}
	return false, nil
}

// updatePrivileges recomputes n's effective privileges from scratch
// (direct ∪ every inbound role's effective set) and, if n is a role,
// propagates by recursing onto every grantee it has been granted to.
// The DAG invariant guarantees termination.
func (g *Graph) updatePrivileges(n *grantee) {
	for k := range n.effective {
		delete(n.effective, k)
	}
	for k, obj := range n.direct {
		c := *obj
		n.effective[k] = &c
	}
	for roleID := range n.roles {
		role, ok := g.arena.get(roleID)
		if !ok {
			continue
		}
		for k, obj := range role.effective {
			if existing, ok := n.effective[k]; ok {
				existing.Grant(*obj)
			} else {
				c := *obj
				n.effective[k] = &c
			}
		}
	}
	for k, obj := range n.effective {
		if !obj.Privileges.HasAny() {
			delete(n.effective, k)
		}
	}
	if n.kind == RoleKind {
		for granteeID := range n.grantees {
			if child, ok := g.arena.get(granteeID); ok {
				g.updatePrivileges(child)
			}
		}
	}
}
