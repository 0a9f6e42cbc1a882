// Package memory provides an in-process DocumentStore with the same atomic
// semantics as the database-backed stores. It backs unit tests and
// --db-kind memory development mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/convsync/sync-service/internal/model"
	registrystore "github.com/convsync/sync-service/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			return New(), nil
		},
	})
}

type memoryStore struct {
	mu       sync.Mutex
	docs     map[string]map[string]model.Document // collection -> id -> doc
	counters map[string]int64
}

// New returns an empty in-memory store.
func New() registrystore.DocumentStore {
	return &memoryStore{
		docs:     map[string]map[string]model.Document{},
		counters: map[string]int64{},
	}
}

func (s *memoryStore) coll(name string) map[string]model.Document {
	c, ok := s.docs[name]
	if !ok {
		c = map[string]model.Document{}
		s.docs[name] = c
	}
	return c
}

func (s *memoryStore) FindOne(ctx context.Context, collection, id string) (model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.coll(collection)[id]
	if !ok {
		return nil, &registrystore.NotFoundError{Collection: collection, ID: id}
	}
	return doc.Clone(), nil
}

func (s *memoryStore) Upsert(ctx context.Context, collection, id string, set, setOnInsert model.Fields, unset []string) (model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	doc, exists := c[id]
	if exists {
		doc = doc.Clone()
	} else {
		doc = model.Document{model.FieldID: id}
		for k, v := range setOnInsert {
			doc[k] = v
		}
	}
	for k, v := range set {
		doc[k] = v
	}
	for _, k := range unset {
		delete(doc, k)
	}
	doc[model.FieldRev] = doc.Rev() + 1
	c[id] = doc
	return doc.Clone(), nil
}

func (s *memoryStore) Find(ctx context.Context, collection string, q registrystore.Query) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Document
	for _, doc := range s.coll(collection) {
		if matches(doc, q.Selector) {
			out = append(out, doc)
		}
	}
	sortDocs(out, q.Sort)
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}

	projected := make([]model.Document, len(out))
	for i, doc := range out {
		projected[i] = project(doc, q.Projection)
	}
	return projected, nil
}

func (s *memoryStore) SoftDelete(ctx context.Context, collection, id string) (model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	doc, ok := c[id]
	if !ok {
		return nil, &registrystore.NotFoundError{Collection: collection, ID: id}
	}
	doc = doc.Clone()
	doc[model.FieldDeleted] = true
	doc[model.FieldUpdatedAt] = model.FormatTime(time.Now())
	doc[model.FieldRev] = doc.Rev() + 1
	c[id] = doc
	return doc.Clone(), nil
}

func (s *memoryStore) NextSeq(ctx context.Context, partitionKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[partitionKey]++
	return s.counters[partitionKey], nil
}

func (s *memoryStore) Close(ctx context.Context) error { return nil }

func sortDocs(docs []model.Document, fields []registrystore.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			c := compareValues(docs[i][f.Field], docs[j][f.Field])
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// project applies an include-style projection. A nil projection returns the
// document unchanged; _id is always included unless explicitly excluded.
func project(doc model.Document, projection map[string]int) model.Document {
	if len(projection) == 0 {
		return doc.Clone()
	}
	out := model.Document{}
	if projection[model.FieldID] != 0 {
		out[model.FieldID] = doc[model.FieldID]
	} else if _, excluded := projection[model.FieldID]; !excluded {
		out[model.FieldID] = doc[model.FieldID]
	}
	for k, v := range projection {
		if v == 0 || k == model.FieldID {
			continue
		}
		if val, ok := doc[k]; ok {
			out[k] = val
		}
	}
	return out
}
