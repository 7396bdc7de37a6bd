package docstore

import (
	"context"
	"encoding/json"
	"errors"

	"example.com/conduit/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

type instrumented struct {
	next    Client
	backend string
}

// Instrument wraps c so every operation is counted and timed per backend.
func Instrument(c Client, backend string) Client {
	return &instrumented{next: c, backend: backend}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func (i *instrumented) Upsert(ctx context.Context, bucket, key string, doc json.RawMessage) (err error) {
	timer := prometheus.NewTimer(monitoring.StoreOperationDuration.WithLabelValues(i.backend, "upsert"))
	defer func() { i.done("upsert", timer, err) }()
	return i.next.Upsert(ctx, bucket, key, doc)
}

func (i *instrumented) Lookup(ctx context.Context, bucket, key string, paths ...string) (res *LookupResult, err error) {
	timer := prometheus.NewTimer(monitoring.StoreOperationDuration.WithLabelValues(i.backend, "lookup"))
	defer func() { i.done("lookup", timer, err) }()
	return i.next.Lookup(ctx, bucket, key, paths...)
}

func (i *instrumented) Query(ctx context.Context, q Query) (rows []Row, err error) {
	timer := prometheus.NewTimer(monitoring.StoreOperationDuration.WithLabelValues(i.backend, "query"))
	defer func() { i.done("query", timer, err) }()
	return i.next.Query(ctx, q)
}

func (i *instrumented) Mutate(ctx context.Context, bucket, key string, specs []MutationSpec, opts ...MutateOption) (err error) {
	timer := prometheus.NewTimer(monitoring.StoreOperationDuration.WithLabelValues(i.backend, "mutate"))
	defer func() { i.done("mutate", timer, err) }()
	return i.next.Mutate(ctx, bucket, key, specs, opts...)
}

func (i *instrumented) Close() {
	i.next.Close()
}

func (i *instrumented) done(op string, timer *prometheus.Timer, err error) {
	timer.ObserveDuration()
	monitoring.StoreOperations.WithLabelValues(i.backend, op, result(err)).Inc()
}
