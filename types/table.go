package types

import "github.com/cockroachdb/errors"

type ColumnDef struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Len          int        `json:"len"` // byte width; derived for numeric types
	IsPrimaryKey bool       `json:"is_primary_key"`
}

// Meta returns the on-disk description of the column used by index headers.
func (c ColumnDef) Meta() ColumnMeta {
	return ColumnMeta{Type: c.Type, Len: c.Width()}
}

// Width is the fixed number of bytes the column occupies in a record or key.
func (c ColumnDef) Width() int {
	if w := c.Type.FixedWidth(); w > 0 {
		return w
	}
	return c.Len
}

type TableSchema struct {
	TableName string      `json:"table_name"`
	Columns   []ColumnDef `json:"columns"`
}

// RecordLen is the payload width of one row; rows are fixed length.
func (s TableSchema) RecordLen() int {
	n := 0
	for _, c := range s.Columns {
		n += c.Width()
	}
	return n
}

// Column looks up a column by name.
func (s TableSchema) Column(name string) (ColumnDef, int, error) {
	for i, c := range s.Columns {
		if c.Name == name {
			return c, i, nil
		}
	}
	return ColumnDef{}, -1, errors.Newf("column '%s' not found in table '%s'", name, s.TableName)
}

// Validate checks that every column has a usable width.
func (s TableSchema) Validate() error {
	if s.TableName == "" {
		return errors.New("table name is empty")
	}
	if len(s.Columns) == 0 {
		return errors.Newf("table '%s' has no columns", s.TableName)
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if _, dup := seen[c.Name]; dup {
			return errors.Newf("duplicate column '%s' in table '%s'", c.Name, s.TableName)
		}
		seen[c.Name] = struct{}{}
		if c.Width() <= 0 {
			return errors.Newf("column '%s' has invalid width %d", c.Name, c.Width())
		}
	}
	return nil
}
