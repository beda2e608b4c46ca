/*
SQLChain compiles fluent, chained query-builder expressions into parameterized
SQL statements.

A query is an ordinary Go expression: a table identifier followed by chained
method calls. The compiler decomposes the chain, resolves every identifier
against a schema, and produces the SQL text together with the ordered list of
runtime parameters. Constant literals are inlined in the SQL; every other
value becomes a positional placeholder bound at execution time.

# Basics

A schema is generated from tagged row structs:

	type Person struct {
		ID   int    `db:"id,serial"`
		Name string `db:"name"`
		Age  int    `db:"age"`
	}

	sch, err := schema.Generate(Person{})

Queries are then compiled against it:

	stmt, err := sqlchain.Prepare(`Person.filter(age > min_age).sort(name)[0:10]`, sch)

which yields:

	SELECT id, name, age FROM Person WHERE age > ? ORDER BY name LIMIT ? OFFSET 0

The placeholders correspond, in order, to the dynamic parameters reported by
stmt.Params(). Here the first is min_age and the second is the row count
synthesized from the range bounds.

# Query methods

	filter(cond)       WHERE clause; cond uses ==, !=, <, <=, >, >=, &&, ||, !,
	                   bare boolean columns and predicate methods such as
	                   name.contains("a")
	get()              first row; get(v) matches the primary key; get(cond) is
	                   filter(cond) plus first row
	sort(a, -b)        ORDER BY a, b DESC
	[i], [a:b]         row limits; ranges desugar to LIMIT/OFFSET
	insert(c.set(v))   INSERT with the given column values
	update(c.add(v))   UPDATE; set, add, sub, mul, div and mod map to
	                   =, +=, -=, *=, /= and %=
	delete(cond)       DELETE
	aggregate(avg(c))  aggregate query; values(c) groups, a following filter()
	                   becomes the HAVING clause
	join(c)            INNER JOIN through the relation declared on column c
	create(), drop()   DDL for the table

# Running statements

A compiled statement can be executed through a DB, with dynamic parameters
passed by the source text of their expressions:

	db := sqlchain.NewDB(sqldb)
	rows, err := db.Query(ctx, stmt, sqlchain.M{"min_age": 18}).GetAll()

Statements classify their result shape (Kind); Get reads a single row, GetAll
reads all rows and Run discards results.
*/
package sqlchain
