// Package schema declares every table the service stores. The declarations are
// the single source for DDL and for the column whitelist used by the store.
package schema

import (
	"fmt"
	"strings"
)

type Column struct {
	Name          string
	SQLType       string
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
}

type Index struct {
	Name    string
	Columns []string
}

type Table struct {
	Name    string
	Columns []Column
	Indexes []Index
}

func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) Has(name string) bool {
	_, ok := t.Column(name)
	return ok
}

func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Settable lists the columns an insert or update may write: everything except
// auto-increment columns.
func (t Table) Settable() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.AutoIncrement {
			names = append(names, c.Name)
		}
	}
	return names
}

func (t Table) PrimaryKey() (Column, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

func (c Column) definition() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')
	b.WriteString(c.SQLType)
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if !c.Nullable && !c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if c.AutoIncrement {
		b.WriteString(" AUTOINCREMENT")
	}
	if c.Unique && !c.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

// CreateStatements returns the idempotent DDL for the table and its indexes.
func (t Table) CreateStatements() []string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = c.definition()
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (%s)`, t.Name, strings.Join(defs, ", ")),
	}
	for _, idx := range t.Indexes {
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON "%s" (%s)`,
			idx.Name, t.Name, strings.Join(idx.Columns, ", ")))
	}
	return stmts
}

// Registry is an ordered, read-only set of tables.
type Registry struct {
	tables []Table
	byName map[string]int
}

func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(tables))}
	for _, t := range tables {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("table %q declared twice", t.Name)
		}
		r.byName[t.Name] = len(r.tables)
		r.tables = append(r.tables, t)
	}
	return r, nil
}

func MustRegistry(tables ...Table) *Registry {
	r, err := NewRegistry(tables...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Table(name string) (Table, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Table{}, false
	}
	return r.tables[i], true
}

func (r *Registry) Tables() []Table {
	out := make([]Table, len(r.tables))
	copy(out, r.tables)
	return out
}

func (t Table) validate() error {
	if t.Name == "" {
		return fmt.Errorf("table without name")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	primaries := 0
	for _, c := range t.Columns {
		if c.Name == "" || c.SQLType == "" {
			return fmt.Errorf("table %q: column needs a name and a type", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %q: column %q declared twice", t.Name, c.Name)
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			primaries++
		}
		if c.AutoIncrement && !c.PrimaryKey {
			return fmt.Errorf("table %q: AUTOINCREMENT column %q must be the primary key", t.Name, c.Name)
		}
	}
	if primaries > 1 {
		return fmt.Errorf("table %q: more than one primary key", t.Name)
	}
	for _, idx := range t.Indexes {
		for _, col := range idx.Columns {
			if !seen[col] {
				return fmt.Errorf("table %q: index %s references unknown column %q", t.Name, idx.Name, col)
			}
		}
	}
	return nil
}
