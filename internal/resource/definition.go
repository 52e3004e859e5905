// Package resource implements traced CRUD operations over relational tables.
//
// A Definition describes one resource type: its table, columns, key type and
// the labels used in span names, events and messages. A Service executes the
// five operations for a Definition, each as exactly one statement bracketed
// by exactly one span.
package resource

import (
	"fmt"
	"strings"
)

// ColumnType is the JSON type a column accepts.
type ColumnType int

const (
	String ColumnType = iota
	Integer
)

// Column describes one writable field of a resource.
type Column struct {
	Name     string
	Type     ColumnType
	Required bool
	// Secret columns are written but never selected, traced or returned.
	Secret bool
	// Rule is a go-playground/validator tag applied to present values.
	Rule string
	// Transform rewrites the validated value before it is bound, e.g. hashing.
	Transform func(any) (any, error)
}

// KeySpec describes how keys of type K are produced and parsed.
type KeySpec[K comparable] struct {
	// Parse converts a path segment into a key.
	Parse func(string) (K, error)
	// Decode converts a value read from the store into a key.
	Decode func(any) (K, error)
	// Generate assigns a key at creation time. Nil means the store assigns it.
	Generate func() K
}

// Definition describes a resource type.
type Definition[K comparable] struct {
	Name        string // route and metric name, e.g. "users"
	Table       string // defaults to Name
	Singular    string // e.g. "user"; used in attribute keys
	Label       string // e.g. "User"; used in span names, events and messages
	PluralLabel string // e.g. "Users"
	Columns     []Column
	// UpdateColumns names the columns Update writes. Defaults to every
	// non-secret column.
	UpdateColumns []string
	// RequiredMessage is returned when a required column is missing.
	RequiredMessage string
	Key             KeySpec[K]
}

// statements holds the SQL generated from a Definition.
type statements struct {
	insert    string
	selectOne string
	selectAll string
	update    string
	delete    string
}

func (d *Definition[K]) table() string {
	if d.Table != "" {
		return d.Table
	}
	return d.Name
}

// updateColumns resolves UpdateColumns against Columns.
func (d *Definition[K]) updateColumns() ([]Column, error) {
	if len(d.UpdateColumns) == 0 {
		var cols []Column
		for _, c := range d.Columns {
			if !c.Secret {
				cols = append(cols, c)
			}
		}
		return cols, nil
	}
	cols := make([]Column, 0, len(d.UpdateColumns))
	for _, name := range d.UpdateColumns {
		c, ok := d.column(name)
		if !ok {
			return nil, fmt.Errorf("resource: %s: unknown update column %q", d.Name, name)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func (d *Definition[K]) column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// visibleColumns returns the non-secret column names in declaration order.
func (d *Definition[K]) visibleColumns() []string {
	names := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if !c.Secret {
			names = append(names, c.Name)
		}
	}
	return names
}

// check reports definition mistakes that would otherwise surface as broken SQL.
func (d *Definition[K]) check() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("resource: definition has no name")
	case d.Singular == "" || d.Label == "" || d.PluralLabel == "":
		return fmt.Errorf("resource: %s: singular and labels are required", d.Name)
	case len(d.Columns) == 0:
		return fmt.Errorf("resource: %s: no columns", d.Name)
	case d.Key.Parse == nil || d.Key.Decode == nil:
		return fmt.Errorf("resource: %s: key parse and decode are required", d.Name)
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c.Name == "" || c.Name == "id" || c.Name == "created_at" {
			return fmt.Errorf("resource: %s: invalid column name %q", d.Name, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("resource: %s: duplicate column %q", d.Name, c.Name)
		}
		seen[c.Name] = true
	}
	_, err := d.updateColumns()
	return err
}

// build generates the statements. Every placeholder is named after the
// column it binds, and "id" binds the key.
func (d *Definition[K]) build() (statements, error) {
	if err := d.check(); err != nil {
		return statements{}, err
	}
	table := d.table()

	var insertCols []string
	if d.Key.Generate != nil {
		insertCols = append(insertCols, "id")
	}
	for _, c := range d.Columns {
		insertCols = append(insertCols, c.Name)
	}
	placeholders := make([]string, len(insertCols))
	for i, c := range insertCols {
		placeholders[i] = "@" + c
	}

	selectCols := append([]string{"id"}, d.visibleColumns()...)
	selectCols = append(selectCols, "created_at")

	updCols, _ := d.updateColumns()
	sets := make([]string, len(updCols))
	for i, c := range updCols {
		sets[i] = c.Name + " = @" + c.Name
	}

	return statements{
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id, created_at",
			table, strings.Join(insertCols, ", "), strings.Join(placeholders, ", ")),
		selectOne: fmt.Sprintf("SELECT %s FROM %s WHERE id = @id",
			strings.Join(selectCols, ", "), table),
		selectAll: fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at, id",
			strings.Join(selectCols, ", "), table),
		update: fmt.Sprintf("UPDATE %s SET %s WHERE id = @id",
			table, strings.Join(sets, ", ")),
		delete: fmt.Sprintf("DELETE FROM %s WHERE id = @id", table),
	}, nil
}
