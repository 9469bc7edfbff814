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

// Kind distinguishes a User grantee (leaf, no outbound edges) from a
// Role grantee (can be granted to other grantees).
type Kind uint8

const (
	UserKind Kind = iota
	RoleKind
)

// grantee is the arena-resident node for both Users and Roles: a
// tagged sum over one shared struct rather than a type hierarchy.
// roles holds the ids of roles granted TO this grantee (inbound
// edges); grantees holds, for a Role, the ids of grantees this role
// has been granted to (outbound edges) — always empty for a User.
type grantee struct {
	id       int
	kind     Kind
	name     string
	roles    map[int]struct{}
	grantees map[int]struct{}

	direct    map[Key]*Object
	effective map[Key]*Object
}

func newGrantee(id int, kind Kind, name string) *grantee {
	return &grantee{
		id:        id,
		kind:      kind,
		name:      name,
		roles:     make(map[int]struct{}),
		grantees:  make(map[int]struct{}),
		direct:    make(map[Key]*Object),
		effective: make(map[Key]*Object),
	}
}

func (g *grantee) isUser() bool { return g.kind == UserKind }

// arena owns every grantee by dense integer id, eliminating the
// pointer cycle between a role and its grantees that the original
// object graph has: edges are id → id sets looked up through the
// arena, never raw references held by either side.
type arena struct {
	nodes  map[int]*grantee
	byName map[string]int
	nextID int
}

func newArena() *arena {
	return &arena{nodes: make(map[int]*grantee), byName: make(map[string]int)}
}

func (a *arena) create(kind Kind, name string) *grantee {
	id := a.nextID
	a.nextID++
	g := newGrantee(id, kind, name)
	a.nodes[id] = g
	a.byName[name] = id
	return g
}

func (a *arena) get(id int) (*grantee, bool) {
	g, ok := a.nodes[id]
	return g, ok
}

func (a *arena) getByName(name string) (*grantee, bool) {
	id, ok := a.byName[name]
	if !ok {
		return nil, false
	}
	g, ok := a.nodes[id]
	return g, ok
}

// destroy detaches g from every role it holds and, if g is a role,
// from every grantee it has been granted to, then removes it from
// the arena.
func (a *arena) destroy(g *grantee) {
	for roleID := range g.roles {
		if role, ok := a.nodes[roleID]; ok {
			delete(role.grantees, g.id)
		}
	}
	for granteeID := range g.grantees {
		if gtee, ok := a.nodes[granteeID]; ok {
			delete(gtee.roles, g.id)
		}
	}
	delete(a.nodes, g.id)
	delete(a.byName, g.name)
}
