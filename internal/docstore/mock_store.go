package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// UpsertCall records one Upsert against a MockStore.
type UpsertCall struct {
	Bucket string
	Key    string
	Doc    json.RawMessage
}

// MutateCall records one Mutate against a MockStore.
type MutateCall struct {
	Bucket string
	Key    string
	Specs  []MutationSpec
	Create bool
}

// MockStore keeps documents in memory and records every call. It backs the
// tests and STORE_BACKEND=memory.
type MockStore struct {
	mu        sync.Mutex
	docs      map[string]map[string]map[string]json.RawMessage
	Upserts   []UpsertCall
	Mutations []MutateCall
	Queries   []Query
	Lookups   int
	Err       error // when set, every operation fails with it
	Closed    bool
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		docs: make(map[string]map[string]map[string]json.RawMessage),
	}
}

func (m *MockStore) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}

// Upsert replaces the whole document.
func (m *MockStore) Upsert(ctx context.Context, bucket, key string, doc json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Upserts = append(m.Upserts, UpsertCall{Bucket: bucket, Key: key, Doc: append(json.RawMessage(nil), doc...)})
	if m.Err != nil {
		return m.Err
	}

	fields, err := splitFields(doc)
	if err != nil {
		return err
	}
	for k, v := range fields {
		fields[k] = compact(v)
	}
	m.bucket(bucket)[key] = fields
	return nil
}

// Lookup returns the document or only the given paths.
func (m *MockStore) Lookup(ctx context.Context, bucket, key string, paths ...string) (*LookupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Lookups++
	if m.Err != nil {
		return nil, m.Err
	}

	fields, ok := m.bucket(bucket)[key]
	if !ok {
		return &LookupResult{Exists: false}, nil
	}
	_, picked, err := joinFields(copyFields(fields), paths)
	if err != nil {
		return nil, err
	}
	return &LookupResult{Exists: true, Fields: picked}, nil
}

// Query filters a bucket by equality on one field. Rows come back in key order.
func (m *MockStore) Query(ctx context.Context, q Query) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, q)
	if m.Err != nil {
		return nil, m.Err
	}

	var want json.RawMessage
	if q.Field != "" {
		data, err := json.Marshal(q.Equals)
		if err != nil {
			return nil, err
		}
		want = data
	}

	docs := m.bucket(q.Bucket)
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows []Row
	for _, k := range keys {
		fields := docs[k]
		if q.Field != "" && !bytes.Equal(fields[q.Field], want) {
			continue
		}
		content, _, err := joinFields(fields, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{ID: k, Content: content})
		if q.Limit > 0 && len(rows) == q.Limit {
			break
		}
	}
	return rows, nil
}

// Mutate applies specs to the stored document in place.
func (m *MockStore) Mutate(ctx context.Context, bucket, key string, specs []MutationSpec, opts ...MutateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := applyMutateOptions(opts)
	m.Mutations = append(m.Mutations, MutateCall{Bucket: bucket, Key: key, Specs: specs, Create: o.create})
	if m.Err != nil {
		return m.Err
	}

	docs := m.bucket(bucket)
	fields, ok := docs[key]
	if !ok {
		if !o.create {
			return ErrNotFound
		}
		fields = make(map[string]json.RawMessage)
	}

	// Work on a copy so a failing spec leaves the document untouched.
	next := copyFields(fields)
	for _, s := range specs {
		switch s.Op {
		case OpReplace:
			next[s.Path] = compact(s.Value)
		case OpArrayAppend:
			var items []json.RawMessage
			if cur, ok := next[s.Path]; ok {
				if !isArray(cur) {
					return ErrPathMismatch
				}
				if err := json.Unmarshal(cur, &items); err != nil {
					return err
				}
			}
			items = append(items, compact(s.Value))
			data, err := json.Marshal(items)
			if err != nil {
				return err
			}
			next[s.Path] = data
		default:
			return ErrUnknownOp
		}
	}
	docs[key] = next
	return nil
}

func (m *MockStore) bucket(name string) map[string]map[string]json.RawMessage {
	b, ok := m.docs[name]
	if !ok {
		b = make(map[string]map[string]json.RawMessage)
		m.docs[name] = b
	}
	return b
}

func copyFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) Upsert(ctx context.Context, bucket, key string, doc json.RawMessage) error {
	return errors.New("mock store upsert failed")
}

func (m *MockStoreFail) Lookup(ctx context.Context, bucket, key string, paths ...string) (*LookupResult, error) {
	return nil, errors.New("mock store lookup failed")
}

func (m *MockStoreFail) Query(ctx context.Context, q Query) ([]Row, error) {
	return nil, errors.New("mock store query failed")
}

func (m *MockStoreFail) Mutate(ctx context.Context, bucket, key string, specs []MutationSpec, opts ...MutateOption) error {
	return errors.New("mock store mutate failed")
}
