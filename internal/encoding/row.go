package encoding

import "fmt"

// Column describes one column of a table's logical schema (§3.1 Table).
type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is the ordered, fixed column list of a table.
type Schema struct {
	Columns []Column
	PKIndex int
}

// ColumnIndex returns the index of name in the schema, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// EncodeRow concatenates every column's encoding, each terminated by Sep,
// per §4.1 ("the concatenation of per-column encodings followed by the
// separator").
func EncodeRow(schema Schema, values []Value) ([]byte, error) {
	if len(values) != len(schema.Columns) {
		return nil, fmt.Errorf("encoding: row has %d values, schema has %d columns", len(values), len(schema.Columns))
	}
	var out []byte
	for i, v := range values {
		if v.Type != schema.Columns[i].Type {
			return nil, fmt.Errorf("encoding: column %q expects type %v, got %v", schema.Columns[i].Name, schema.Columns[i].Type, v.Type)
		}
		if v.Null && !schema.Columns[i].Nullable {
			return nil, fmt.Errorf("encoding: column %q is not nullable", schema.Columns[i].Name)
		}
		field, err := EncodeValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, field...)
		out = append(out, Sep)
	}
	return out, nil
}

// DecodeRow splits an encoded row back into typed values (§8 invariant 3:
// decode(encode(row)) == row).
func DecodeRow(schema Schema, row []byte) ([]Value, error) {
	fields, err := SplitFields(row, len(schema.Columns))
	if err != nil {
		return nil, err
	}
	values := make([]Value, len(schema.Columns))
	for i, f := range fields {
		v, err := DecodeValue(f, schema.Columns[i].Type)
		if err != nil {
			return nil, fmt.Errorf("encoding: column %q: %w", schema.Columns[i].Name, err)
		}
		values[i] = v
	}
	return values, nil
}

// SplitFields splits a Sep-terminated encoded row into exactly n fields,
// without decoding any of them — the mechanism behind §4.1's "field
// extraction by column index scans the encoded row for the n-th separator;
// no full decode is needed".
func SplitFields(row []byte, n int) ([][]byte, error) {
	fields := make([][]byte, 0, n)
	start := 0
	for i := 0; i < len(row) && len(fields) < n; i++ {
		if row[i] == Sep {
			fields = append(fields, row[start:i])
			start = i + 1
		}
	}
	if len(fields) != n {
		return nil, fmt.Errorf("encoding: expected %d fields, found %d in %d bytes", n, len(fields), len(row))
	}
	return fields, nil
}

// ExtractField returns the raw (still-encoded) bytes of column idx from an
// encoded row, without decoding any other column. Used by residual WHERE
// evaluation in §4.2 so filtering never pays for a full row decode.
func ExtractField(row []byte, idx int, numCols int) ([]byte, error) {
	start := 0
	col := 0
	for i := 0; i < len(row); i++ {
		if row[i] == Sep {
			if col == idx {
				return row[start:i], nil
			}
			col++
			start = i + 1
			if col > idx {
				break
			}
		}
	}
	return nil, fmt.Errorf("encoding: column index %d out of range (row has %d fields)", idx, col)
}

// ReplaceField rebuilds the row with column idx's encoding replaced by
// newField, implementing §4.1's "update-in-place replaces the n-th field,
// reassembling the row".
func ReplaceField(row []byte, idx int, numCols int, newField []byte) ([]byte, error) {
	fields, err := SplitFields(row, numCols)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= numCols {
		return nil, fmt.Errorf("encoding: column index %d out of range", idx)
	}
	out := make([]byte, 0, len(row)+len(newField))
	for i, f := range fields {
		if i == idx {
			out = append(out, newField...)
		} else {
			out = append(out, f...)
		}
		out = append(out, Sep)
	}
	return out, nil
}
