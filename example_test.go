// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlchain_test

import (
	"fmt"

	"github.com/canonical/sqlchain"
	"github.com/canonical/sqlchain/schema"
)

func ExamplePrepare() {
	type Person struct {
		ID   int    `db:"id,serial"`
		Name string `db:"name"`
		Age  int    `db:"age"`
	}

	sch, err := schema.Generate(Person{})
	if err != nil {
		panic(err)
	}

	stmt, err := sqlchain.Prepare(`Person.filter(age > min_age && name.contains("a")).sort(-age)`, sch)
	if err != nil {
		panic(err)
	}

	fmt.Println(stmt.SQL())
	for _, p := range stmt.Params() {
		fmt.Printf("param %s from column %s.%s\n", p.Expr, p.Table, p.Field)
	}
	// Output:
	// SELECT id, name, age FROM Person WHERE age > ? AND name LIKE '%' || 'a' || '%' ORDER BY age DESC
	// param min_age from column Person.age
}
