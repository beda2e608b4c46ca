// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package schema holds the read-only table registry the compiler consults:
// table and column identifiers, declared SQL types, the auto-increment
// identity marker and relation markers. The registry is threaded explicitly
// through compilation; it is assumed fully populated by the time the compiler
// runs, so exact-match lookups are expected to succeed.
package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Type is a declared column type.
type Type struct {
	// Name is the SQL type name, e.g. INTEGER or TEXT.
	Name string
	// Serial marks the auto-increment identity type.
	Serial bool
}

// Field is a column of a table.
type Field struct {
	Name Identifier
	Type Type
	// RefTable and RefField mark a relation to another table's column.
	RefTable Identifier
	RefField Identifier
}

// Identifier names a table or column.
type Identifier = string

// Table holds the columns of one table in declaration order.
type Table struct {
	name    Identifier
	fields  map[Identifier]Field
	order   []Identifier
	primary Identifier
}

// Name returns the table identifier.
func (t *Table) Name() Identifier { return t.name }

// Field looks up a column by name.
func (t *Table) Field(name Identifier) (Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// Fields returns the columns in declaration order.
func (t *Table) Fields() []Field {
	fields := make([]Field, 0, len(t.order))
	for _, name := range t.order {
		fields = append(fields, t.fields[name])
	}
	return fields
}

// PrimaryKey returns the name of the table's identity column, or "" if the
// table has none.
func (t *Table) PrimaryKey() Identifier { return t.primary }

// AddField appends a column. The first serial column becomes the table's
// primary key.
func (t *Table) AddField(f Field) error {
	if !validColNameRx.MatchString(f.Name) {
		return fmt.Errorf("invalid column name %q in table %q", f.Name, t.name)
	}
	if _, ok := t.fields[f.Name]; ok {
		return fmt.Errorf("column %q declared twice in table %q", f.Name, t.name)
	}
	t.fields[f.Name] = f
	t.order = append(t.order, f.Name)
	if f.Type.Serial && t.primary == "" {
		t.primary = f.Name
	}
	return nil
}

// Schema is the registry of all known tables.
type Schema struct {
	tables map[Identifier]*Table
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{tables: map[Identifier]*Table{}}
}

// AddTable registers a new empty table and returns it.
func (s *Schema) AddTable(name Identifier) (*Table, error) {
	if _, ok := s.tables[name]; ok {
		return nil, fmt.Errorf("table %q declared twice", name)
	}
	t := &Table{name: name, fields: map[Identifier]Field{}}
	s.tables[name] = t
	return t, nil
}

// Table looks up a table by name.
func (s *Schema) Table(name Identifier) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Field looks up a column by table and column name.
func (s *Schema) Field(table, column Identifier) (Field, bool) {
	t, ok := s.tables[table]
	if !ok {
		return Field{}, false
	}
	return t.Field(column)
}

// Generate builds a schema by reflection over sample instantiations of
// row struct types. The struct name becomes the table name and each field
// carrying a "db" tag becomes a column. Tag options mark the identity column
// and relations:
//
//	type Person struct {
//		ID        int    `db:"id,serial"`
//		Name      string `db:"name"`
//		AddressID int    `db:"address_id,references=Address.id"`
//	}
func Generate(typeSamples ...any) (*Schema, error) {
	sch := New()
	for _, typeSample := range typeSamples {
		if typeSample == nil {
			return nil, fmt.Errorf("need valid value, got nil")
		}
		t := reflect.TypeOf(typeSample)
		if t.Kind() == reflect.Pointer {
			return nil, fmt.Errorf("need struct, got pointer to %s", t.Elem().Kind())
		}
		if t.Kind() != reflect.Struct {
			return nil, fmt.Errorf("need struct, got %s", t.Kind())
		}
		if t.Name() == "" {
			return nil, fmt.Errorf("cannot use anonymous struct")
		}
		table, err := getTableInfo(t)
		if err != nil {
			return nil, err
		}
		if dupe, ok := sch.tables[t.Name()]; ok {
			if dupe == table {
				return nil, fmt.Errorf("found multiple instances of type %q", t.Name())
			}
			return nil, fmt.Errorf("two types found with name %q", t.Name())
		}
		sch.tables[t.Name()] = table
	}
	return sch, nil
}

// tableInfoCache caches reflected table information across schemas.
var tableInfoCacheMutex sync.RWMutex
var tableInfoCache = make(map[reflect.Type]*Table)

// getTableInfo returns the table derived from a row struct type.
func getTableInfo(t reflect.Type) (*Table, error) {
	tableInfoCacheMutex.RLock()
	table, found := tableInfoCache[t]
	tableInfoCacheMutex.RUnlock()
	if found {
		return table, nil
	}

	table = &Table{name: t.Name(), fields: map[Identifier]Field{}}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		// Fields without a "db" tag are not columns.
		tag := f.Tag.Get("db")
		if tag == "" {
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("field %q of struct %s not exported", f.Name, t.Name())
		}
		field, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("cannot parse tag for field %s.%s: %s", t.Name(), f.Name, err)
		}
		if field.Type.Name == "" {
			typ, err := sqlType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %s", t.Name(), f.Name, err)
			}
			field.Type.Name = typ
		}
		if err := table.AddField(field); err != nil {
			return nil, err
		}
	}
	if len(table.order) == 0 {
		return nil, fmt.Errorf(`no "db" tags found in struct %q`, t.Name())
	}

	tableInfoCacheMutex.Lock()
	tableInfoCache[t] = table
	tableInfoCacheMutex.Unlock()

	return table, nil
}

// sqlType maps a Go field type to a declared SQL type name.
func sqlType(t reflect.Type) (string, error) {
	switch t.Kind() {
	case reflect.Bool:
		return "BOOLEAN", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "INTEGER", nil
	case reflect.Float32, reflect.Float64:
		return "REAL", nil
	case reflect.String:
		return "TEXT", nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "BLOB", nil
		}
	}
	return "", fmt.Errorf("unsupported column type %s", t)
}

// This expression should be aligned with the identifiers the chain parser
// accepts.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses a "db" struct tag into a column. Supported options are
// "serial" and "references=Table.column".
func parseTag(tag string) (Field, error) {
	options := strings.Split(tag, ",")

	var field Field
	for _, option := range options[1:] {
		switch {
		case option == "serial":
			field.Type.Serial = true
		case strings.HasPrefix(option, "references="):
			target := strings.TrimPrefix(option, "references=")
			table, column, ok := strings.Cut(target, ".")
			if !ok || table == "" || column == "" {
				return Field{}, fmt.Errorf("malformed references option %q", option)
			}
			field.RefTable = table
			field.RefField = column
		default:
			return Field{}, fmt.Errorf("unsupported flag %q in tag %q", option, tag)
		}
	}

	name := options[0]
	if len(name) == 0 {
		return Field{}, fmt.Errorf("empty db tag")
	}
	if !validColNameRx.MatchString(name) {
		return Field{}, fmt.Errorf("invalid column name in 'db' tag: %q", name)
	}
	field.Name = name
	return field, nil
}
