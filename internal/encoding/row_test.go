package encoding

import "testing"

func testSchema() Schema {
	return Schema{
		PKIndex: 0,
		Columns: []Column{
			{Name: "id", Type: TypeSignedInt},
			{Name: "name", Type: TypeText, Nullable: true},
			{Name: "balance", Type: TypeUnsignedInt},
		},
	}
}

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	schema := testSchema()
	values := []Value{SignedInt(10), Text("addr"), UnsignedInt(5)}
	row, err := EncodeRow(schema, values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRow(schema, row)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range values {
		if decoded[i] != values[i] {
			t.Fatalf("column %d mismatch: got %+v want %+v", i, decoded[i], values[i])
		}
	}
}

func TestEncodeDecodeRowWithNull(t *testing.T) {
	schema := testSchema()
	values := []Value{SignedInt(10), NullValue(TypeText), UnsignedInt(5)}
	row, err := EncodeRow(schema, values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRow(schema, row)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded[1].Null {
		t.Fatalf("expected column 1 to decode as NULL, got %+v", decoded[1])
	}
}

func TestExtractFieldWithoutFullDecode(t *testing.T) {
	schema := testSchema()
	values := []Value{SignedInt(99), Text("hi"), UnsignedInt(1)}
	row, err := EncodeRow(schema, values)
	if err != nil {
		t.Fatal(err)
	}
	field, err := ExtractField(row, 1, len(schema.Columns))
	if err != nil {
		t.Fatal(err)
	}
	v, err := DecodeValue(field, TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if v.Text != "hi" {
		t.Fatalf("got %q, want %q", v.Text, "hi")
	}
}

func TestReplaceField(t *testing.T) {
	schema := testSchema()
	values := []Value{SignedInt(1), Text("old"), UnsignedInt(0)}
	row, err := EncodeRow(schema, values)
	if err != nil {
		t.Fatal(err)
	}
	newField, err := EncodeValue(Text("new"))
	if err != nil {
		t.Fatal(err)
	}
	updated, err := ReplaceField(row, 1, len(schema.Columns), newField)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeRow(schema, updated)
	if err != nil {
		t.Fatal(err)
	}
	if decoded[1].Text != "new" || decoded[0].Int != 1 || decoded[2].Uint != 0 {
		t.Fatalf("unexpected row after replace: %+v", decoded)
	}
}
