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
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/laminadb/lamina/pkg/moerr"
)

func TestTransitiveGrantScenario(t *testing.T) {
	Convey("Given a role reader with SELECT on table T", t, func() {
		g := New()
		reader, err := g.CreateRole("reader")
		So(err, ShouldBeNil)
		table := Key{DBID: 1, ObjectID: 7}
		So(g.GrantPrivileges(reader, Object{Key: table, Privileges: Select}), ShouldBeNil)

		Convey("When alice is granted the reader role", func() {
			alice, err := g.CreateUser("alice")
			So(err, ShouldBeNil)
			So(g.GrantRole(alice, reader), ShouldBeNil)

			Convey("Then alice can SELECT on T", func() {
				ok, err := g.CheckPrivileges(alice, Object{Key: table, Privileges: Select})
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})

			Convey("And once reader is revoked from alice, she can no longer SELECT on T", func() {
				So(g.RevokeRole(alice, reader), ShouldBeNil)
				ok, err := g.CheckPrivileges(alice, Object{Key: table, Privileges: Select})
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestWildcardScenario(t *testing.T) {
	Convey("Given bob granted SELECT on all of database 1", t, func() {
		g := New()
		bob, err := g.CreateUser("bob")
		So(err, ShouldBeNil)
		So(g.GrantPrivileges(bob, Object{Key: Key{DBID: 1, ObjectID: -1}, Privileges: Select}), ShouldBeNil)

		Convey("Then bob can SELECT on any specific table in database 1", func() {
			ok, err := g.CheckPrivileges(bob, Object{Key: Key{DBID: 1, ObjectID: 42}, Privileges: Select})
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestCycleScenario(t *testing.T) {
	Convey("Given roles r1, r2, r3", t, func() {
		g := New()
		r1, err := g.CreateRole("r1")
		So(err, ShouldBeNil)
		r2, err := g.CreateRole("r2")
		So(err, ShouldBeNil)
		r3, err := g.CreateRole("r3")
		So(err, ShouldBeNil)

		Convey("When r2 is granted r1 and r3 is granted r2", func() {
			So(g.GrantRole(r2, r1), ShouldBeNil)
			So(g.GrantRole(r3, r2), ShouldBeNil)

			Convey("Then granting r1 the r3 role fails with CycleDetected and the graph is unchanged", func() {
				err := g.GrantRole(r1, r3)
				So(err, ShouldNotBeNil)
				So(errors.Is(err, moerr.CycleDetected), ShouldBeTrue)
				hasRole, hasErr := g.HasRole(r1, r3)
				So(hasErr, ShouldBeNil)
				So(hasRole, ShouldBeFalse)
			})
		})
	})
}
