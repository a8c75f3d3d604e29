// Package encoding implements the bijective row/key encoding from §4.1: a
// fixed separator delimits fields, integers are base-10 ASCII, text/datetime
// carry a quote sentinel, and NULL is a literal byte sequence distinguishable
// from the quoted string "NULL". Field extraction works directly on the
// encoded bytes without a full decode, so storage engine filtering (§4.2)
// never needs to materialize every column to test one.
package encoding

import (
	"fmt"
	"strconv"

	"github.com/shardkit/shardkit/internal/dberr"
)

// Sep is the field/key separator byte mandated by §4.1 and §9 (never
// permitted inside a stored value).
const Sep byte = 0x1E

// quoteSentinel marks a TEXT/DATETIME value as an explicit string, not NULL.
// Resolves the spec's §4.1/§9 ambiguity (the sentinel is described both as
// "stripped on storage" and as the thing that disambiguates NULL from the
// literal string "NULL"): the sentinel is kept in the STORED encoding,
// because dropping it is the only way the literal 4-byte string "NULL"
// would become indistinguishable from an actual NULL. "Stripped on storage"
// is read as referring to the SQL source's own quote characters (the `'` or
// `"` the parser saw around the literal), not this internal marker.
const quoteSentinel = '"'

// nullLiteral is the exact byte sequence used to encode SQL NULL.
var nullLiteral = []byte("NULL")

// Type is the SQL-dialect's (deliberately small, per §1 Non-goals) type system.
type Type int

const (
	TypeSignedInt Type = iota
	TypeUnsignedInt
	TypeText
	TypeDatetime
)

func (t Type) String() string {
	switch t {
	case TypeSignedInt:
		return "INT"
	case TypeUnsignedInt:
		return "UINT"
	case TypeText:
		return "TEXT"
	case TypeDatetime:
		return "DATETIME"
	default:
		return "UNKNOWN"
	}
}

// Value is a tagged literal of one of the four supported types, or NULL.
type Value struct {
	Type  Type
	Null  bool
	Int   int64
	Uint  uint64
	Text  string // also holds DATETIME values, stored as raw text
}

// NullValue constructs the NULL value of a given type (type still matters
// for schema validation even though NULLs encode identically).
func NullValue(t Type) Value { return Value{Type: t, Null: true} }

// SignedInt, UnsignedInt, Text and Datetime build non-null values.
func SignedInt(v int64) Value    { return Value{Type: TypeSignedInt, Int: v} }
func UnsignedInt(v uint64) Value { return Value{Type: TypeUnsignedInt, Uint: v} }
func Text(v string) Value        { return Value{Type: TypeText, Text: v} }
func Datetime(v string) Value    { return Value{Type: TypeDatetime, Text: v} }

// ContainsSep reports whether v's text payload contains the reserved
// separator byte, enforced at insert time per §9.
func (v Value) ContainsSep() bool {
	if v.Type != TypeText && v.Type != TypeDatetime {
		return false
	}
	for i := 0; i < len(v.Text); i++ {
		if v.Text[i] == Sep {
			return true
		}
	}
	return false
}

// EncodeValue renders v into its stored byte form, not yet separator-terminated.
func EncodeValue(v Value) ([]byte, error) {
	if v.Null {
		return append([]byte{}, nullLiteral...), nil
	}
	switch v.Type {
	case TypeSignedInt:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	case TypeUnsignedInt:
		return []byte(strconv.FormatUint(v.Uint, 10)), nil
	case TypeText, TypeDatetime:
		if v.ContainsSep() {
			return nil, dberr.ErrSeparatorInValue
		}
		out := make([]byte, 0, len(v.Text)+1)
		out = append(out, quoteSentinel)
		out = append(out, v.Text...)
		return out, nil
	default:
		return nil, fmt.Errorf("encoding: unknown type %v", v.Type)
	}
}

// DecodeValue parses field bytes (as produced by EncodeValue, without any
// trailing separator) back into a typed Value.
func DecodeValue(field []byte, t Type) (Value, error) {
	if string(field) == string(nullLiteral) {
		return NullValue(t), nil
	}
	switch t {
	case TypeSignedInt:
		n, err := strconv.ParseInt(string(field), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("encoding: decode signed int %q: %w", field, err)
		}
		return SignedInt(n), nil
	case TypeUnsignedInt:
		n, err := strconv.ParseUint(string(field), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("encoding: decode unsigned int %q: %w", field, err)
		}
		return UnsignedInt(n), nil
	case TypeText, TypeDatetime:
		if len(field) == 0 || field[0] != quoteSentinel {
			return Value{}, fmt.Errorf("encoding: text/datetime field missing quote sentinel: %q", field)
		}
		s := string(field[1:])
		if t == TypeText {
			return Text(s), nil
		}
		return Datetime(s), nil
	default:
		return Value{}, fmt.Errorf("encoding: unknown type %v", t)
	}
}
