package docstore

import (
	"encoding/json"
	"testing"
)

func TestEncodeField_Scalar(t *testing.T) {
	value, items, err := encodeField(json.RawMessage(`"jake@example.com"`))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if value != `"jake@example.com"` || items != nil {
		t.Fatalf("unexpected encoding: %q %v", value, items)
	}
}

func TestEncodeField_Array(t *testing.T) {
	value, items, err := encodeField(json.RawMessage(`[ "a", "b" ]`))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if value != arrayMarker {
		t.Fatalf("expected array marker, got %q", value)
	}
	if len(items) != 2 || items[0] != `"a"` || items[1] != `"b"` {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestDecodeField(t *testing.T) {
	cases := []struct {
		value string
		items []string
		want  string
	}{
		{`"x"`, nil, `"x"`},
		{arrayMarker, nil, `[]`},
		{arrayMarker, []string{`"a"`}, `["a"]`},
		// a row created by an append on a missing field has no value
		{"", []string{`"a"`, `"b"`}, `["a","b"]`},
		{"", nil, `null`},
	}
	for _, c := range cases {
		if got := string(decodeField(c.value, c.items)); got != c.want {
			t.Fatalf("decodeField(%q, %v) = %s, want %s", c.value, c.items, got, c.want)
		}
	}
}

func TestIndexValue(t *testing.T) {
	if v := indexValue(json.RawMessage(` "a@b.io" `)); v != `"a@b.io"` {
		t.Fatalf("unexpected index value %q", v)
	}
	if v := indexValue(json.RawMessage(`["x"]`)); v != "" {
		t.Fatalf("arrays are not indexed, got %q", v)
	}
	if v := indexValue(nil); v != "" {
		t.Fatalf("absent fields are not indexed, got %q", v)
	}
}

func TestCassandraStore_Indexed(t *testing.T) {
	s := NewCassandraWithSession(nil, map[string][]string{"users": {"email"}})
	if !s.isIndexed("users", "email") {
		t.Fatalf("email should be indexed")
	}
	if s.isIndexed("users", "bio") || s.isIndexed("tags", "email") {
		t.Fatalf("unexpected indexed field")
	}
}
