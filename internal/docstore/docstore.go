// Package docstore is a small document database contract (upsert, lookup,
// query, partial mutation) with Cassandra, MongoDB and in-memory backends.
//
// Documents are JSON objects addressed by (bucket, key). Paths are top-level
// field names.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Mutate when the document does not exist and
	// WithCreate was not given.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrNotObject is returned when a document body is not a JSON object.
	ErrNotObject = errors.New("docstore: document must be a JSON object")
	// ErrUnknownOp is returned for a MutationSpec with an unsupported op.
	ErrUnknownOp = errors.New("docstore: unknown mutation op")
	// ErrPathMismatch is returned when ArrayAppend targets a non-array value.
	ErrPathMismatch = errors.New("docstore: path does not hold an array")
)

// Client is the store contract consumed by the repositories.
type Client interface {
	Upsert(ctx context.Context, bucket, key string, doc json.RawMessage) error
	Lookup(ctx context.Context, bucket, key string, paths ...string) (*LookupResult, error)
	Query(ctx context.Context, q Query) ([]Row, error)
	Mutate(ctx context.Context, bucket, key string, specs []MutationSpec, opts ...MutateOption) error
	Close()
}

// Query selects documents of a bucket. An empty Field lists the whole bucket.
type Query struct {
	Bucket string
	Field  string
	Equals any
	Limit  int
}

// Row is one query result: the document key and its full content.
type Row struct {
	ID      string
	Content json.RawMessage
}

// LookupResult holds the paths read by Lookup.
type LookupResult struct {
	Exists bool
	Fields map[string]json.RawMessage
}

// PathExists reports whether path was present in the stored document.
func (r *LookupResult) PathExists(path string) bool {
	if r == nil || r.Fields == nil {
		return false
	}
	_, ok := r.Fields[path]
	return ok
}

// ContentAs decodes a single path into v.
func (r *LookupResult) ContentAs(path string, v any) error {
	raw, ok := r.Fields[path]
	if !ok {
		return fmt.Errorf("docstore: path %q not found", path)
	}
	return json.Unmarshal(raw, v)
}

// Decode decodes every returned path into v as one JSON object.
func (r *LookupResult) Decode(v any) error {
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// MutationOp is the kind of partial update applied to a path.
type MutationOp string

const (
	OpArrayAppend MutationOp = "array_append"
	OpReplace     MutationOp = "replace"
)

// MutationSpec targets one path. Value is the JSON encoding of the operand.
type MutationSpec struct {
	Op    MutationOp
	Path  string
	Value json.RawMessage
}

// ArrayAppend builds a spec appending v to the array at path.
func ArrayAppend(path string, v any) (MutationSpec, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return MutationSpec{}, err
	}
	return MutationSpec{Op: OpArrayAppend, Path: path, Value: data}, nil
}

// Replace builds a spec setting path to v.
func Replace(path string, v any) (MutationSpec, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return MutationSpec{}, err
	}
	return MutationSpec{Op: OpReplace, Path: path, Value: data}, nil
}

type mutateOptions struct {
	create bool
}

// MutateOption configures Mutate.
type MutateOption func(*mutateOptions)

// WithCreate makes Mutate create the document when it does not exist.
func WithCreate() MutateOption {
	return func(o *mutateOptions) { o.create = true }
}

func applyMutateOptions(opts []MutateOption) mutateOptions {
	var o mutateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Marshal encodes v as a document body, checking it is a JSON object.
func Marshal(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if _, err := splitFields(data); err != nil {
		return nil, err
	}
	return data, nil
}

// splitFields decodes a document into its top-level fields.
func splitFields(doc json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil || fields == nil {
		return nil, ErrNotObject
	}
	return fields, nil
}

// joinFields encodes fields back into a document, keeping only paths when given.
func joinFields(fields map[string]json.RawMessage, paths []string) (json.RawMessage, map[string]json.RawMessage, error) {
	if len(paths) > 0 {
		picked := make(map[string]json.RawMessage, len(paths))
		for _, p := range paths {
			if v, ok := fields[p]; ok {
				picked[p] = v
			}
		}
		fields = picked
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, err
	}
	return data, fields, nil
}

// isArray reports whether raw encodes a JSON array.
func isArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
