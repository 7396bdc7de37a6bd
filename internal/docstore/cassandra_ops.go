package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// ErrNotIndexed is returned by Query on a field the Cassandra backend does not index.
var ErrNotIndexed = errors.New("docstore: field is not indexed")

// arrayMarker is stored in value for fields holding an array; the elements live in items.
const arrayMarker = "[]"

// --- Document operations ---

// Upsert replaces every field row of the document in one logged batch.
// The partition delete is written one microsecond before the inserts so the
// new rows win.
func (s *CassandraStore) Upsert(ctx context.Context, bucket, key string, doc json.RawMessage) error {
	fields, err := splitFields(doc)
	if err != nil {
		return err
	}

	old, err := s.indexedValues(ctx, bucket, key)
	if err != nil {
		return err
	}

	ts := time.Now().UnixMicro()
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM documents USING TIMESTAMP ? WHERE bucket = ? AND doc_key = ?`, ts-1, bucket, key)

	for field, raw := range fields {
		value, items, err := encodeField(raw)
		if err != nil {
			return err
		}
		batch.Query(`
			INSERT INTO documents (bucket, doc_key, field, value, items)
			VALUES (?, ?, ?, ?, ?) USING TIMESTAMP ?`,
			bucket, key, field, value, items, ts,
		)
	}

	for field := range s.indexed[bucket] {
		s.reindex(batch, bucket, key, field, old[field], indexValue(fields[field]), ts)
	}

	batch.Query(`INSERT INTO document_keys (bucket, doc_key) VALUES (?, ?) USING TIMESTAMP ?`, bucket, key, ts)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("docstore", "Failed to upsert document", err)
		return fmt.Errorf("docstore: upsert %s: %w", bucket, err)
	}
	return nil
}

// Lookup reads the field rows of one document.
func (s *CassandraStore) Lookup(ctx context.Context, bucket, key string, paths ...string) (*LookupResult, error) {
	fields, err := s.readFields(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		exists, err := s.keyExists(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		if !exists {
			return &LookupResult{Exists: false}, nil
		}
	}

	_, picked, err := joinFields(fields, paths)
	if err != nil {
		return nil, err
	}
	return &LookupResult{Exists: true, Fields: picked}, nil
}

// Query resolves keys through documents_by_field (or document_keys for a
// whole-bucket listing) and then reads each document.
func (s *CassandraStore) Query(ctx context.Context, q Query) ([]Row, error) {
	var iter *gocql.Iter
	switch {
	case q.Field == "":
		stmt := `SELECT doc_key FROM document_keys WHERE bucket = ?`
		args := []interface{}{q.Bucket}
		if q.Limit > 0 {
			stmt += ` LIMIT ?`
			args = append(args, q.Limit)
		}
		iter = s.Session.Query(stmt, args...).WithContext(ctx).Iter()
	case s.isIndexed(q.Bucket, q.Field):
		want, err := json.Marshal(q.Equals)
		if err != nil {
			return nil, err
		}
		stmt := `SELECT doc_key FROM documents_by_field WHERE bucket = ? AND field = ? AND value = ?`
		args := []interface{}{q.Bucket, q.Field, string(want)}
		if q.Limit > 0 {
			stmt += ` LIMIT ?`
			args = append(args, q.Limit)
		}
		iter = s.Session.Query(stmt, args...).WithContext(ctx).Iter()
	default:
		return nil, fmt.Errorf("%w: %s.%s", ErrNotIndexed, q.Bucket, q.Field)
	}

	var keys []string
	var k string
	for iter.Scan(&k) {
		keys = append(keys, k)
	}
	if err := iter.Close(); err != nil {
		logg.Error("docstore", "Failed to query document keys", err)
		return nil, fmt.Errorf("docstore: query %s: %w", q.Bucket, err)
	}

	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		fields, err := s.readFields(ctx, q.Bucket, key)
		if err != nil {
			return nil, err
		}
		content, _, err := joinFields(fields, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{ID: key, Content: content})
	}
	return rows, nil
}

// Mutate applies specs without reading the document. ArrayAppend is a list
// append on the field row.
func (s *CassandraStore) Mutate(ctx context.Context, bucket, key string, specs []MutationSpec, opts ...MutateOption) error {
	o := applyMutateOptions(opts)

	if !o.create {
		exists, err := s.keyExists(ctx, bucket, key)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}

	ts := time.Now().UnixMicro()
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	for _, spec := range specs {
		switch spec.Op {
		case OpArrayAppend:
			batch.Query(`
				UPDATE documents USING TIMESTAMP ? SET items = items + ?
				WHERE bucket = ? AND doc_key = ? AND field = ?`,
				ts, []string{string(compact(spec.Value))}, bucket, key, spec.Path,
			)
		case OpReplace:
			value, items, err := encodeField(spec.Value)
			if err != nil {
				return err
			}
			batch.Query(`
				UPDATE documents USING TIMESTAMP ? SET value = ?, items = ?
				WHERE bucket = ? AND doc_key = ? AND field = ?`,
				ts, value, items, bucket, key, spec.Path,
			)
			if s.isIndexed(bucket, spec.Path) {
				old, err := s.fieldValue(ctx, bucket, key, spec.Path)
				if err != nil {
					return err
				}
				s.reindex(batch, bucket, key, spec.Path, indexValue(old), indexValue(spec.Value), ts)
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnknownOp, spec.Op)
		}
	}

	if o.create {
		batch.Query(`INSERT INTO document_keys (bucket, doc_key) VALUES (?, ?) USING TIMESTAMP ?`, bucket, key, ts)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("docstore", "Failed to mutate document", err)
		return fmt.Errorf("docstore: mutate %s: %w", bucket, err)
	}
	return nil
}

// --- Helpers ---

func (s *CassandraStore) readFields(ctx context.Context, bucket, key string) (map[string]json.RawMessage, error) {
	iter := s.Session.Query(
		`SELECT field, value, items FROM documents WHERE bucket = ? AND doc_key = ?`,
		bucket, key,
	).WithContext(ctx).Iter()

	fields := make(map[string]json.RawMessage)
	var field, value string
	var items []string
	for iter.Scan(&field, &value, &items) {
		fields[field] = decodeField(value, items)
		items = nil
	}

	if err := iter.Close(); err != nil {
		logg.Error("docstore", "Failed to read document", err)
		return nil, fmt.Errorf("docstore: lookup %s: %w", bucket, err)
	}
	return fields, nil
}

func (s *CassandraStore) fieldValue(ctx context.Context, bucket, key, field string) (json.RawMessage, error) {
	var value string
	var items []string
	err := s.Session.Query(
		`SELECT value, items FROM documents WHERE bucket = ? AND doc_key = ? AND field = ?`,
		bucket, key, field,
	).WithContext(ctx).Scan(&value, &items)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: read field %s: %w", field, err)
	}
	return decodeField(value, items), nil
}

func (s *CassandraStore) keyExists(ctx context.Context, bucket, key string) (bool, error) {
	var k string
	err := s.Session.Query(
		`SELECT doc_key FROM document_keys WHERE bucket = ? AND doc_key = ?`,
		bucket, key,
	).WithContext(ctx).Scan(&k)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		logg.Error("docstore", "Failed to check document key", err)
		return false, fmt.Errorf("docstore: lookup %s: %w", bucket, err)
	}
	return true, nil
}

// indexedValues returns the current index values of the document's indexed fields.
func (s *CassandraStore) indexedValues(ctx context.Context, bucket, key string) (map[string]string, error) {
	if len(s.indexed[bucket]) == 0 {
		return nil, nil
	}
	fields, err := s.readFields(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for f := range s.indexed[bucket] {
		out[f] = indexValue(fields[f])
	}
	return out, nil
}

func (s *CassandraStore) reindex(batch *gocql.Batch, bucket, key, field, oldValue, newValue string, ts int64) {
	if oldValue == newValue {
		return
	}
	if oldValue != "" {
		batch.Query(`
			DELETE FROM documents_by_field USING TIMESTAMP ?
			WHERE bucket = ? AND field = ? AND value = ? AND doc_key = ?`,
			ts, bucket, field, oldValue, key,
		)
	}
	if newValue != "" {
		batch.Query(`
			INSERT INTO documents_by_field (bucket, field, value, doc_key)
			VALUES (?, ?, ?, ?) USING TIMESTAMP ?`,
			bucket, field, newValue, key, ts,
		)
	}
}

// indexValue is the compact JSON of a scalar; arrays and absent fields are not indexed.
func indexValue(raw json.RawMessage) string {
	if len(raw) == 0 || isArray(raw) {
		return ""
	}
	return string(compact(raw))
}

// encodeField splits a field value into the value/items columns.
func encodeField(raw json.RawMessage) (string, []string, error) {
	if !isArray(raw) {
		return string(compact(raw)), nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return "", nil, err
	}
	items := make([]string, 0, len(elems))
	for _, e := range elems {
		items = append(items, string(compact(e)))
	}
	return arrayMarker, items, nil
}

// decodeField rebuilds the JSON of a field row.
func decodeField(value string, items []string) json.RawMessage {
	if value == arrayMarker || len(items) > 0 {
		return json.RawMessage("[" + strings.Join(items, ",") + "]")
	}
	if value == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(value)
}
