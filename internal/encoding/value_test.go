package encoding

import "testing"

func TestValueRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    Value
	}{
		{"signed", SignedInt(-42)},
		{"unsigned", UnsignedInt(42)},
		{"text", Text("hello")},
		{"text looks like null", Text("NULL")},
		{"datetime", Datetime("2024-01-02T15:04:05Z")},
		{"null int", NullValue(TypeSignedInt)},
		{"null text", NullValue(TypeText)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			enc, err := EncodeValue(c.v)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := DecodeValue(enc, c.v.Type)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != c.v {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, c.v)
			}
		})
	}
}

func TestNullDistinctFromLiteralNullString(t *testing.T) {
	nullEnc, err := EncodeValue(NullValue(TypeText))
	if err != nil {
		t.Fatal(err)
	}
	literalEnc, err := EncodeValue(Text("NULL"))
	if err != nil {
		t.Fatal(err)
	}
	if string(nullEnc) == string(literalEnc) {
		t.Fatalf("NULL and literal \"NULL\" string encoded identically: %q", nullEnc)
	}
}

func TestSeparatorRejected(t *testing.T) {
	bad := Text(string([]byte{'a', Sep, 'b'}))
	if _, err := EncodeValue(bad); err == nil {
		t.Fatal("expected error encoding value containing separator byte")
	}
}
