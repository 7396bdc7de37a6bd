package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestMockStore_UpsertLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMock()

	if err := m.Upsert(ctx, "users", "u1", json.RawMessage(`{"email":"a@b.io","following":[]}`)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	res, err := m.Lookup(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !res.Exists {
		t.Fatalf("expected document to exist")
	}

	var email string
	if err := res.ContentAs("email", &email); err != nil || email != "a@b.io" {
		t.Fatalf("unexpected email %q (%v)", email, err)
	}

	missing, err := m.Lookup(ctx, "users", "nope")
	if err != nil {
		t.Fatalf("lookup of missing doc should not error: %v", err)
	}
	if missing.Exists {
		t.Fatalf("expected missing document")
	}
}

func TestMockStore_LookupPaths(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	_ = m.Upsert(ctx, "users", "u1", json.RawMessage(`{"email":"a@b.io","bio":"hi"}`))

	res, err := m.Lookup(ctx, "users", "u1", "bio")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if res.PathExists("email") {
		t.Fatalf("email was not requested")
	}
	if !res.PathExists("bio") {
		t.Fatalf("bio should be returned")
	}
}

func TestMockStore_UpsertRejectsNonObject(t *testing.T) {
	m := NewMock()
	err := m.Upsert(context.Background(), "users", "u1", json.RawMessage(`[1,2]`))
	if !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
}

func TestMockStore_QueryByField(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	_ = m.Upsert(ctx, "users", "u1", json.RawMessage(`{"email":"a@b.io"}`))
	_ = m.Upsert(ctx, "users", "u2", json.RawMessage(`{"email":"c@d.io"}`))

	rows, err := m.Query(ctx, Query{Bucket: "users", Field: "email", Equals: "c@d.io"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "u2" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	all, err := m.Query(ctx, Query{Bucket: "users"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}

	limited, _ := m.Query(ctx, Query{Bucket: "users", Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestMockStore_MutateArrayAppend(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	_ = m.Upsert(ctx, "users", "u1", json.RawMessage(`{"email":"a@b.io","following":[]}`))

	spec, err := ArrayAppend("following", "u2")
	if err != nil {
		t.Fatalf("spec failed: %v", err)
	}
	if err := m.Mutate(ctx, "users", "u1", []MutationSpec{spec}); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
	if err := m.Mutate(ctx, "users", "u1", []MutationSpec{spec}); err != nil {
		t.Fatalf("second mutate failed: %v", err)
	}

	res, _ := m.Lookup(ctx, "users", "u1")
	var following []string
	if err := res.ContentAs("following", &following); err != nil {
		t.Fatalf("decode following: %v", err)
	}
	if len(following) != 2 || following[0] != "u2" {
		t.Fatalf("unexpected following: %v", following)
	}

	var email string
	_ = res.ContentAs("email", &email)
	if email != "a@b.io" {
		t.Fatalf("unrelated field changed: %q", email)
	}
}

func TestMockStore_MutateMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	spec, _ := ArrayAppend("followers", "u1")

	if err := m.Mutate(ctx, "followers", "u2", []MutationSpec{spec}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := m.Mutate(ctx, "followers", "u2", []MutationSpec{spec}, WithCreate()); err != nil {
		t.Fatalf("mutate with create failed: %v", err)
	}
	res, _ := m.Lookup(ctx, "followers", "u2")
	var followers []string
	_ = res.ContentAs("followers", &followers)
	if len(followers) != 1 || followers[0] != "u1" {
		t.Fatalf("unexpected followers: %v", followers)
	}
}

func TestMockStore_MutatePathMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	_ = m.Upsert(ctx, "users", "u1", json.RawMessage(`{"email":"a@b.io"}`))
	spec, _ := ArrayAppend("email", "x")

	if err := m.Mutate(ctx, "users", "u1", []MutationSpec{spec}); !errors.Is(err, ErrPathMismatch) {
		t.Fatalf("expected ErrPathMismatch, got %v", err)
	}
}

func TestMockStore_Err(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	m.Err = context.DeadlineExceeded

	if err := m.Upsert(ctx, "users", "u1", json.RawMessage(`{}`)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if _, err := m.Query(ctx, Query{Bucket: "users"}); err == nil {
		t.Fatalf("expected query error")
	}
	if len(m.Upserts) != 1 || len(m.Queries) != 1 {
		t.Fatalf("failed calls should still be recorded")
	}
}

func TestMockStoreFail(t *testing.T) {
	var c Client = &MockStoreFail{}
	ctx := context.Background()

	if err := c.Upsert(ctx, "b", "k", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected upsert error")
	}
	if _, err := c.Lookup(ctx, "b", "k"); err == nil {
		t.Fatalf("expected lookup error")
	}
	if _, err := c.Query(ctx, Query{Bucket: "b"}); err == nil {
		t.Fatalf("expected query error")
	}
	if err := c.Mutate(ctx, "b", "k", nil); err == nil {
		t.Fatalf("expected mutate error")
	}
}
