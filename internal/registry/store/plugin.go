package store

import (
	"context"
	"fmt"

	"github.com/convsync/sync-service/internal/model"
)

// SortField is one ordering term of a Find query.
type SortField struct {
	Field string
	Desc  bool
}

// Query is the minimal selector/projection/sort/limit subset the sync API
// needs. Selector values are either exact-match values or Mongo-style
// operator objects ({"$ne": true}, {"$gte": 5}, ...).
type Query struct {
	Selector   map[string]any
	Projection map[string]int
	Sort       []SortField
	Limit      int64
}

// DocumentStore is the capability interface the sync engine requires from a
// document database. Implementations must make Upsert and NextSeq truly
// atomic (single round trip, not read-then-write); everything else builds on
// that.
type DocumentStore interface {
	// FindOne returns the document with the given id, or *NotFoundError.
	// Soft-deleted documents are still returned.
	FindOne(ctx context.Context, collection, id string) (model.Document, error)

	// Upsert atomically creates the document (applying setOnInsert) or
	// updates it (applying only set), removes the unset fields, increments
	// rev by exactly 1, and returns the post-write document.
	Upsert(ctx context.Context, collection, id string, set, setOnInsert model.Fields, unset []string) (model.Document, error)

	// Find runs the query and returns the matching documents. Each call
	// re-executes the query; a zero limit means no limit.
	Find(ctx context.Context, collection string, q Query) ([]model.Document, error)

	// SoftDelete marks the document deleted, refreshes updated_at_server,
	// increments rev, and returns the post-write document. Returns
	// *NotFoundError when the id never existed.
	SoftDelete(ctx context.Context, collection, id string) (model.Document, error)

	// NextSeq atomically increments and returns the sequence counter for
	// the partition key, creating it at 1 on first use. Two concurrent
	// calls for the same key never observe the same value.
	NextSeq(ctx context.Context, partitionKey string) (int64, error)

	// Close releases the underlying client.
	Close(ctx context.Context) error
}

// Loader creates a store from config found in the context.
type Loader func(ctx context.Context) (DocumentStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
