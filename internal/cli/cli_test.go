// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func TestCLI(t *testing.T) { TestingT(t) }

type CLISuite struct {
	schemaPath string
}

var _ = Suite(&CLISuite{})

const exampleSchema = `
tables:
  - name: Address
    fields:
      - name: id
        serial: true
      - name: street
        type: TEXT
  - name: Person
    fields:
      - name: id
        serial: true
      - name: name
        type: TEXT
      - name: age
        type: INTEGER
      - name: address_id
        references: Address.id
`

func (s *CLISuite) SetUpSuite(c *C) {
	s.schemaPath = filepath.Join(c.MkDir(), "schema.yaml")
	err := os.WriteFile(s.schemaPath, []byte(exampleSchema), 0644)
	c.Assert(err, IsNil)
}

func (s *CLISuite) run(c *C, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (s *CLISuite) TestLoadSchema(c *C) {
	sch, err := loadSchema(s.schemaPath)
	c.Assert(err, IsNil)

	table, ok := sch.Table("Person")
	c.Assert(ok, Equals, true)
	c.Check(table.PrimaryKey(), Equals, "id")

	f, ok := sch.Field("Person", "address_id")
	c.Assert(ok, Equals, true)
	c.Check(f.Type.Name, Equals, "INTEGER")
	c.Check(f.RefTable, Equals, "Address")
	c.Check(f.RefField, Equals, "id")

	f, ok = sch.Field("Address", "street")
	c.Assert(ok, Equals, true)
	c.Check(f.Type.Name, Equals, "TEXT")
}

func (s *CLISuite) TestLoadSchemaErrors(c *C) {
	dir := c.MkDir()
	tests := []struct {
		summary string
		content string
		err     string
	}{{
		summary: "no tables",
		content: "tables: []\n",
		err:     "schema file .* declares no tables",
	}, {
		summary: "field without type",
		content: "tables:\n  - name: T\n    fields:\n      - name: f\n",
		err:     `table "T": field "f" has no type`,
	}, {
		summary: "serial with wrong type",
		content: "tables:\n  - name: T\n    fields:\n      - name: f\n        type: TEXT\n        serial: true\n",
		err:     `table "T": serial field "f" must have type INTEGER`,
	}, {
		summary: "malformed references",
		content: "tables:\n  - name: T\n    fields:\n      - name: f\n        references: Address\n",
		err:     `table "T": malformed references "Address" on field "f"`,
	}}
	for _, t := range tests {
		path := filepath.Join(dir, "schema.yaml")
		err := os.WriteFile(path, []byte(t.content), 0644)
		c.Assert(err, IsNil)
		_, err = loadSchema(path)
		c.Check(err, ErrorMatches, t.err, Commentf("test %q failed", t.summary))
	}
}

func (s *CLISuite) TestCompile(c *C) {
	out, err := s.run(c, "compile", "--schema", s.schemaPath,
		`Person.filter(age > min_age).sort(name)[0:10]`)
	c.Assert(err, IsNil)

	lines := strings.SplitN(out, "\n", 3)
	c.Assert(len(lines) >= 2, Equals, true)
	c.Check(lines[0], Equals,
		"SELECT id, name, age, address_id FROM Person WHERE age > ? ORDER BY name LIMIT ? OFFSET 0")
	c.Check(lines[1], Equals, "kind: select multi")
	c.Check(strings.Contains(out, "min_age"), Equals, true)
}

func (s *CLISuite) TestCompileErrors(c *C) {
	_, err := s.run(c, "compile", "--schema", s.schemaPath, `Animal.filter(age > 18)`)
	c.Assert(err, ErrorMatches, `cannot compile expression: column 1: unknown table "Animal"`)
}

func (s *CLISuite) TestRun(c *C) {
	dbPath := filepath.Join(c.MkDir(), "people.db")

	for _, args := range [][]string{
		{"run", "--schema", s.schemaPath, "--db", dbPath, `Person.create()`},
		{"run", "--schema", s.schemaPath, "--db", dbPath,
			`Person.insert(name.set(n), age.set(30), address_id.set(1))`, "--param", "n=Fred"},
	} {
		out, err := s.run(c, args...)
		c.Assert(err, IsNil, Commentf("args: %v", args))
		c.Check(strings.TrimSpace(out), Equals, "ok")
	}

	out, err := s.run(c, "run", "--schema", s.schemaPath, "--db", dbPath,
		`Person.filter(age > min_age)`, "--param", "min_age=18")
	c.Assert(err, IsNil)
	c.Check(strings.Contains(out, "Fred"), Equals, true)
	c.Check(strings.Contains(out, "(1 rows)"), Equals, true)
}

func (s *CLISuite) TestRunEmptyResult(c *C) {
	dbPath := filepath.Join(c.MkDir(), "people.db")
	_, err := s.run(c, "run", "--schema", s.schemaPath, "--db", dbPath, `Person.create()`)
	c.Assert(err, IsNil)

	out, err := s.run(c, "run", "--schema", s.schemaPath, "--db", dbPath, `Person`)
	c.Assert(err, IsNil)
	c.Check(strings.TrimSpace(out), Equals, "(0 rows)")
}
