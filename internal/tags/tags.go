package tags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"example.com/conduit/internal/cache"
	"example.com/conduit/internal/docstore"
	"example.com/conduit/internal/logger"
	"example.com/conduit/internal/models"
	"example.com/conduit/internal/monitoring"
)

const Bucket = "tags"

var ErrInvalidTag = errors.New("tag name must be 1-64 characters")

var logg = logger.New()

type Repo struct {
	store docstore.Client
	cache cache.TagCache
}

// New builds the repository. tagCache may be nil.
func New(store docstore.Client, tagCache cache.TagCache) *Repo {
	return &Repo{store: store, cache: tagCache}
}

// All returns every stored tag.
func (r *Repo) All(ctx context.Context) ([]models.Tag, error) {
	rows, err := r.store.Query(ctx, docstore.Query{Bucket: Bucket})
	if err != nil {
		logg.Error("tags", "Failed to list tags", err)
		return nil, err
	}

	out := make([]models.Tag, 0, len(rows))
	for _, row := range rows {
		var tag models.Tag
		if err := json.Unmarshal(row.Content, &tag); err != nil {
			return nil, fmt.Errorf("tags: decode %s: %w", row.ID, err)
		}
		if tag.Name == "" {
			tag.Name = row.ID
		}
		out = append(out, tag)
	}
	return out, nil
}

// Names returns the name of every tag, served from the cache when possible.
// Cache failures fall through to the store.
//
// The cache is filled only against the generation seen on the miss. A Save
// that lands between the store read and the fill bumps the generation, and
// the stale list is dropped instead of cached.
func (r *Repo) Names(ctx context.Context) ([]string, error) {
	fill := false
	var gen int64
	if r.cache != nil {
		names, g, ok, err := r.cache.Get(ctx)
		switch {
		case err != nil:
			monitoring.TagsCacheLookups.WithLabelValues("error").Inc()
			logg.Error("tags", "Tag cache read failed", err)
		case ok:
			monitoring.TagsCacheLookups.WithLabelValues("hit").Inc()
			return names, nil
		default:
			monitoring.TagsCacheLookups.WithLabelValues("miss").Inc()
			fill, gen = true, g
		}
	}

	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for _, t := range all {
		names = append(names, t.Name)
	}

	if fill {
		err := r.cache.Set(ctx, names, gen)
		switch {
		case errors.Is(err, cache.ErrStale):
			logg.Debug("tags", "Tag list changed while reading, cache fill skipped")
		case err != nil:
			logg.Error("tags", "Tag cache write failed", err)
		}
	}
	return names, nil
}

// Save stores a tag keyed by its name, so saving a name twice keeps one tag.
func (r *Repo) Save(ctx context.Context, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return nil, ErrInvalidTag
	}

	tag := &models.Tag{Name: name}
	body, err := docstore.Marshal(tag)
	if err != nil {
		return nil, err
	}
	if err := r.store.Upsert(ctx, Bucket, name, body); err != nil {
		logg.Error("tags", "Failed to save tag", err)
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			logg.Error("tags", "Tag cache invalidation failed", err)
		}
	}
	return tag, nil
}
