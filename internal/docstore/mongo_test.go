package docstore

import (
	"encoding/json"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoUpdate(t *testing.T) {
	a, _ := ArrayAppend("following", "u2")
	b, _ := ArrayAppend("following", "u3")
	c, _ := Replace("bio", "hello")

	update, err := mongoUpdate([]MutationSpec{a, b, c})
	if err != nil {
		t.Fatalf("mongoUpdate failed: %v", err)
	}

	push, ok := update["$push"].(bson.M)
	if !ok {
		t.Fatalf("expected $push, got %#v", update)
	}
	each := push["following"].(bson.M)["$each"].([]interface{})
	if len(each) != 2 || each[0] != "u2" || each[1] != "u3" {
		t.Fatalf("unexpected $each: %#v", each)
	}

	set := update["$set"].(bson.M)
	if set["bio"] != "hello" {
		t.Fatalf("unexpected $set: %#v", set)
	}
}

func TestMongoUpdate_UnknownOp(t *testing.T) {
	_, err := mongoUpdate([]MutationSpec{{Op: "remove", Path: "x", Value: json.RawMessage(`1`)}})
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp, got %v", err)
	}
}

func TestValueFromJSON(t *testing.T) {
	v, err := valueFromJSON(json.RawMessage(`"abc"`))
	if err != nil || v != "abc" {
		t.Fatalf("unexpected value %#v (%v)", v, err)
	}
	if _, err := valueFromJSON(json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestFieldsFromBSON(t *testing.T) {
	id, fields, err := fieldsFromBSON(bson.M{
		"_id":       "u1",
		"email":     "a@b.io",
		"following": bson.A{"u2"},
	})
	if err != nil {
		t.Fatalf("fieldsFromBSON failed: %v", err)
	}
	if id != "u1" {
		t.Fatalf("unexpected id %q", id)
	}
	if _, ok := fields["_id"]; ok {
		t.Fatalf("_id must not be part of the content")
	}
	if string(fields["email"]) != `"a@b.io"` {
		t.Fatalf("unexpected email %s", fields["email"])
	}
	var following []string
	if err := json.Unmarshal(fields["following"], &following); err != nil || len(following) != 1 {
		t.Fatalf("unexpected following %s (%v)", fields["following"], err)
	}
}
