// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/canonical/sqlchain/schema"
)

// schemaFile is the YAML declaration of the tables a query can target.
// Tables and fields are lists so that declaration order is preserved:
//
//	tables:
//	  - name: Address
//	    fields:
//	      - name: id
//	        serial: true
//	  - name: Person
//	    fields:
//	      - name: id
//	        serial: true
//	      - name: name
//	        type: TEXT
//	      - name: address_id
//	        references: Address.id
type schemaFile struct {
	Tables []tableDecl `koanf:"tables"`
}

type tableDecl struct {
	Name   string      `koanf:"name"`
	Fields []fieldDecl `koanf:"fields"`
}

type fieldDecl struct {
	Name       string `koanf:"name"`
	Type       string `koanf:"type"`
	Serial     bool   `koanf:"serial"`
	References string `koanf:"references"`
}

// loadSchema reads a YAML schema file and builds the table registry.
func loadSchema(path string) (*schema.Schema, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("cannot load schema file: %w", err)
	}
	var decl schemaFile
	if err := k.Unmarshal("", &decl); err != nil {
		return nil, fmt.Errorf("cannot parse schema file %s: %w", path, err)
	}
	if len(decl.Tables) == 0 {
		return nil, fmt.Errorf("schema file %s declares no tables", path)
	}

	sch := schema.New()
	for _, t := range decl.Tables {
		table, err := sch.AddTable(t.Name)
		if err != nil {
			return nil, err
		}
		for _, f := range t.Fields {
			field, err := declaredField(f)
			if err != nil {
				return nil, fmt.Errorf("table %q: %w", t.Name, err)
			}
			if err := table.AddField(field); err != nil {
				return nil, err
			}
		}
		if len(t.Fields) == 0 {
			return nil, fmt.Errorf("table %q declares no fields", t.Name)
		}
	}
	return sch, nil
}

func declaredField(f fieldDecl) (schema.Field, error) {
	field := schema.Field{
		Name: f.Name,
		Type: schema.Type{Name: f.Type, Serial: f.Serial},
	}
	// A serial field is the auto-increment identity; its storage type is
	// fixed.
	if f.Serial {
		if f.Type != "" && f.Type != "INTEGER" {
			return schema.Field{}, fmt.Errorf("serial field %q must have type INTEGER", f.Name)
		}
		field.Type.Name = "INTEGER"
	}
	if f.References != "" {
		table, column, ok := strings.Cut(f.References, ".")
		if !ok || table == "" || column == "" {
			return schema.Field{}, fmt.Errorf("malformed references %q on field %q", f.References, f.Name)
		}
		field.RefTable = table
		field.RefField = column
		// Relations point at identity columns, so they default to INTEGER.
		if field.Type.Name == "" {
			field.Type.Name = "INTEGER"
		}
	}
	if field.Type.Name == "" {
		return schema.Field{}, fmt.Errorf("field %q has no type", f.Name)
	}
	return field, nil
}
