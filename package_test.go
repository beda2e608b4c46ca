// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlchain"
	"github.com/canonical/sqlchain/schema"
)

// Hook up gocheck into the "go test" runner.
func TestPackage(t *testing.T) { TestingT(t) }

type PackageSuite struct {
	sch *schema.Schema
}

var _ = Suite(&PackageSuite{})

type Address struct {
	ID     int    `db:"id,serial"`
	Street string `db:"street"`
}

type Person struct {
	ID        int    `db:"id,serial"`
	Name      string `db:"name"`
	Age       int    `db:"age"`
	AddressID int    `db:"address_id,references=Address.id"`
}

func (s *PackageSuite) SetUpSuite(c *C) {
	sch, err := schema.Generate(Address{}, Person{})
	c.Assert(err, IsNil)
	s.sch = sch
}

// setupDB opens an in-memory database and creates the example tables through
// compiled statements.
func (s *PackageSuite) setupDB(c *C) *sqlchain.DB {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	db := sqlchain.NewDB(sqldb)

	ctx := context.Background()
	for _, input := range []string{
		`Address.create()`,
		`Person.create()`,
	} {
		err := db.Query(ctx, sqlchain.MustPrepare(input, s.sch), nil).Run()
		c.Assert(err, IsNil)
	}

	insertAddress := sqlchain.MustPrepare(`Address.insert(street.set(street))`, s.sch)
	for _, street := range []string{"Main Street", "Church Road", "Station Lane"} {
		err := db.Query(ctx, insertAddress, sqlchain.M{"street": street}).Run()
		c.Assert(err, IsNil)
	}

	insertPerson := sqlchain.MustPrepare(
		`Person.insert(name.set(name), age.set(age), address_id.set(addr))`, s.sch)
	for _, row := range []struct {
		name string
		age  int
		addr int
	}{
		{"Fred", 30, 1},
		{"Mark", 20, 2},
		{"Mary", 40, 3},
		{"James", 35, 1},
	} {
		err := db.Query(ctx, insertPerson,
			sqlchain.M{"name": row.name, "age": row.age, "addr": row.addr}).Run()
		c.Assert(err, IsNil)
	}
	return db
}

func (s *PackageSuite) TestPrepare(c *C) {
	stmt, err := sqlchain.Prepare(`Person.filter(age > min_age).sort(name)[0:10]`, s.sch)
	c.Assert(err, IsNil)
	c.Check(stmt.SQL(), Equals,
		"SELECT id, name, age, address_id FROM Person WHERE age > ? ORDER BY name LIMIT ? OFFSET 0")
	c.Check(stmt.Kind(), Equals, sqlchain.SelectMulti)
	c.Check(stmt.String(), Equals, `Person.filter(age > min_age).sort(name)[0:10]`)

	params := stmt.Params()
	c.Assert(params, HasLen, 2)
	c.Check(params[0], Equals, sqlchain.Param{Expr: "min_age", Field: "age", Table: "Person"})
	c.Check(params[1].Expr, Equals, "10 - 0")

	literals := stmt.Literals()
	c.Assert(literals, HasLen, 1)
	c.Check(literals[0].Expr, Equals, "0")
}

func (s *PackageSuite) TestPrepareKinds(c *C) {
	tests := []struct {
		input string
		kind  sqlchain.Kind
	}{
		{`Person`, sqlchain.SelectMulti},
		{`Person.get(42)`, sqlchain.SelectOne},
		{`Person[0]`, sqlchain.SelectOne},
		{`Person.filter(id == v)`, sqlchain.SelectOne},
		{`Person.insert(name.set(n))`, sqlchain.InsertOne},
		{`Person.update(age.add(1)).filter(id == v)`, sqlchain.Exec},
		{`Person.delete()`, sqlchain.Exec},
		{`Person.aggregate(avg(age))`, sqlchain.AggregateOne},
		{`Person.aggregate(avg(age)).values(address_id)`, sqlchain.AggregateMulti},
		{`Person.create()`, sqlchain.Exec},
		{`Person.drop()`, sqlchain.Exec},
	}
	for _, t := range tests {
		stmt, err := sqlchain.Prepare(t.input, s.sch)
		c.Assert(err, IsNil, Commentf("input: %s", t.input))
		c.Check(stmt.Kind(), Equals, t.kind, Commentf("input: %s", t.input))
	}
}

func (s *PackageSuite) TestPrepareErrors(c *C) {
	tests := []struct {
		input string
		err   string
	}{{
		input: `Person.filter(`,
		err:   `cannot parse expression: .*`,
	}, {
		input: `1 + 2`,
		err:   `cannot parse expression: column 1: expected method call`,
	}, {
		input: `Animal.filter(age > 18)`,
		err:   `cannot compile expression: column 1: unknown table "Animal"`,
	}, {
		input: `Person.filter(height > 170).sort(weight)`,
		err: `cannot compile expression: column 15: table "Person" has no column "height";` +
			` column 34: table "Person" has no column "weight"`,
	}}
	for _, t := range tests {
		_, err := sqlchain.Prepare(t.input, s.sch)
		c.Check(err, ErrorMatches, t.err, Commentf("input: %s", t.input))
	}
}

func (s *PackageSuite) TestMustPrepare(c *C) {
	c.Check(func() { sqlchain.MustPrepare(`Animal`, s.sch) }, PanicMatches,
		`cannot compile expression: column 1: unknown table "Animal"`)
}

func (s *PackageSuite) TestGetAll(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(`Person.filter(age > min_age).sort(name)`, s.sch)
	rows, err := db.Query(context.Background(), stmt, sqlchain.M{"min_age": 25}).GetAll()
	c.Assert(err, IsNil)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row["name"].(string))
	}
	c.Check(names, DeepEquals, []string{"Fred", "James", "Mary"})
}

func (s *PackageSuite) TestGet(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(`Person.get(pk)`, s.sch)
	row := sqlchain.M{}
	err := db.Query(context.Background(), stmt, sqlchain.M{"pk": 2}).Get(row)
	c.Assert(err, IsNil)
	c.Check(row["name"], Equals, "Mark")
	c.Check(row["age"], Equals, int64(20))

	err = db.Query(context.Background(), stmt, sqlchain.M{"pk": 99}).Get(sqlchain.M{})
	c.Check(err, Equals, sqlchain.ErrNoRows)
}

func (s *PackageSuite) TestGetRejectsExec(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(`Person.delete()`, s.sch)
	err := db.Query(context.Background(), stmt, nil).Get(sqlchain.M{})
	c.Check(err, ErrorMatches, "cannot get results from a exec statement")
	_, err = db.Query(context.Background(), stmt, nil).GetAll()
	c.Check(err, ErrorMatches, "cannot get results from a exec statement")
}

func (s *PackageSuite) TestLimits(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(`Person.sort(age)[1:3]`, s.sch)
	rows, err := db.Query(context.Background(), stmt, nil).GetAll()
	c.Assert(err, IsNil)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row["name"].(string))
	}
	c.Check(names, DeepEquals, []string{"Fred", "James"})

	stmt = sqlchain.MustPrepare(`Person.sort(age)[i]`, s.sch)
	row := sqlchain.M{}
	err = db.Query(context.Background(), stmt, sqlchain.M{"i": 0}).Get(row)
	c.Assert(err, IsNil)
	c.Check(row["name"], Equals, "Mark")
}

func (s *PackageSuite) TestUpdateAndDelete(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()
	ctx := context.Background()

	update := sqlchain.MustPrepare(`Person.update(age.add(delta)).filter(name == who)`, s.sch)
	err := db.Query(ctx, update, sqlchain.M{"delta": 5, "who": "Mark"}).Run()
	c.Assert(err, IsNil)

	get := sqlchain.MustPrepare(`Person.get(name == who)`, s.sch)
	row := sqlchain.M{}
	err = db.Query(ctx, get, sqlchain.M{"who": "Mark"}).Get(row)
	c.Assert(err, IsNil)
	c.Check(row["age"], Equals, int64(25))

	del := sqlchain.MustPrepare(`Person.delete(name == who)`, s.sch)
	err = db.Query(ctx, del, sqlchain.M{"who": "Mark"}).Run()
	c.Assert(err, IsNil)
	err = db.Query(ctx, get, sqlchain.M{"who": "Mark"}).Get(sqlchain.M{})
	c.Check(err, Equals, sqlchain.ErrNoRows)
}

func (s *PackageSuite) TestAggregate(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(`Person.aggregate(count(id), avg(age))`, s.sch)
	row := sqlchain.M{}
	err := db.Query(context.Background(), stmt, nil).Get(row)
	c.Assert(err, IsNil)
	c.Check(row["id_count"], Equals, int64(4))
	c.Check(row["age_avg"], Equals, 31.25)
}

func (s *PackageSuite) TestAggregateHaving(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(
		`Person.aggregate(count(id)).values(address_id).filter(count(id) > min_count)`, s.sch)
	rows, err := db.Query(context.Background(), stmt, sqlchain.M{"min_count": 1}).GetAll()
	c.Assert(err, IsNil)
	c.Assert(rows, HasLen, 1)
	c.Check(rows[0]["id_count"], Equals, int64(2))
}

func (s *PackageSuite) TestJoin(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(`Person.join(address_id).filter(name == who)`, s.sch)
	row := sqlchain.M{}
	err := db.Query(context.Background(), stmt, sqlchain.M{"who": "Fred"}).Get(row)
	c.Assert(err, IsNil)
	c.Check(row["address_id"], Equals, int64(1))
}

func (s *PackageSuite) TestMissingParameter(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(`Person.filter(age > min_age)`, s.sch)
	_, err := db.Query(context.Background(), stmt, sqlchain.M{}).GetAll()
	c.Check(err, ErrorMatches, `parameter "min_age" missing`)
	err = db.Query(context.Background(), stmt, nil).Run()
	c.Check(err, ErrorMatches, `parameter "min_age" missing`)
}

func (s *PackageSuite) TestGetNilMap(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()

	stmt := sqlchain.MustPrepare(`Person.get()`, s.sch)
	err := db.Query(context.Background(), stmt, nil).Get(nil)
	c.Check(err, ErrorMatches, "need valid map, got nil")
}

func (s *PackageSuite) TestDrop(c *C) {
	db := s.setupDB(c)
	defer db.PlainDB().Close()
	ctx := context.Background()

	err := db.Query(ctx, sqlchain.MustPrepare(`Person.drop()`, s.sch), nil).Run()
	c.Assert(err, IsNil)
	_, err = db.Query(ctx, sqlchain.MustPrepare(`Person`, s.sch), nil).GetAll()
	c.Check(err, NotNil)
}
