package docstore

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestArrayAppend_QuotesStringValue(t *testing.T) {
	spec, err := ArrayAppend("following", "abc")
	if err != nil {
		t.Fatalf("ArrayAppend failed: %v", err)
	}
	if spec.Op != OpArrayAppend || spec.Path != "following" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if string(spec.Value) != `"abc"` {
		t.Fatalf("expected JSON-quoted id, got %s", spec.Value)
	}
}

func TestMarshal_RequiresObject(t *testing.T) {
	if _, err := Marshal(map[string]string{"name": "go"}); err != nil {
		t.Fatalf("object should marshal: %v", err)
	}
	if _, err := Marshal([]string{"go"}); !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
}

func TestLookupResult_Decode(t *testing.T) {
	res := &LookupResult{
		Exists: true,
		Fields: map[string]json.RawMessage{
			"name": json.RawMessage(`"go"`),
		},
	}
	var tag struct {
		Name string `json:"name"`
	}
	if err := res.Decode(&tag); err != nil || tag.Name != "go" {
		t.Fatalf("decode failed: %+v %v", tag, err)
	}
	if err := res.ContentAs("missing", &tag.Name); err == nil {
		t.Fatalf("expected error for missing path")
	}

	var nilRes *LookupResult
	if nilRes.PathExists("name") {
		t.Fatalf("nil result has no paths")
	}
}

func TestIsArray(t *testing.T) {
	if !isArray(json.RawMessage(" \n[1]")) {
		t.Fatalf("expected array")
	}
	if isArray(json.RawMessage(`"[x]"`)) {
		t.Fatalf("string is not an array")
	}
}
