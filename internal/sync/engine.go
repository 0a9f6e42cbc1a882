package sync

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/convsync/sync-service/internal/model"
	registrycache "github.com/convsync/sync-service/internal/registry/cache"
	registrystore "github.com/convsync/sync-service/internal/registry/store"
	"github.com/convsync/sync-service/internal/telemetry"
	"github.com/google/uuid"
)

// Engine orchestrates writes against the document store: it strips
// client-supplied server fields, validates required fields, assigns sequence
// numbers on first insert, runs the three-way merge when a base is supplied,
// and performs the atomic write. It holds no mutable state of its own; all
// shared state lives in the store's atomic primitives.
type Engine struct {
	store      registrystore.DocumentStore
	cache      registrycache.SummaryCache
	summaryTTL time.Duration
	now        func() time.Time
}

const defaultSummaryTTL = 5 * time.Minute

// New creates an engine. cache may be nil when no summary cache is
// configured; summaryTTL <= 0 selects the default.
func New(store registrystore.DocumentStore, cache registrycache.SummaryCache, summaryTTL time.Duration) *Engine {
	if summaryTTL <= 0 {
		summaryTTL = defaultSummaryTTL
	}
	return &Engine{store: store, cache: cache, summaryTTL: summaryTTL, now: time.Now}
}

// Upsert is the insert-or-update (last write wins) path. Server-managed
// fields are recomputed; created_at_server and server_seq are assigned only
// when the id did not previously exist.
func (e *Engine) Upsert(ctx context.Context, coll model.Collection, doc model.Document) (model.Document, error) {
	doc = doc.Clone()
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
		doc[model.FieldID] = id
	}

	// Messages always carry their parent; conversations only need the
	// owner when the row is first created.
	if coll.Name == model.Messages.Name {
		if missing := coll.Validate(doc); missing != "" {
			return nil, e.reject(coll, missing)
		}
	}

	existing, err := e.findExisting(ctx, coll.Name, id)
	if err != nil {
		return nil, err
	}

	ts := model.FormatTime(e.now())
	set := doc.Sanitize()
	set[model.FieldUpdatedAt] = ts
	if _, ok := set[model.FieldDeleted]; !ok {
		set[model.FieldDeleted] = false
	}

	setOnInsert := model.Fields{model.FieldCreatedAt: ts}
	if existing == nil {
		if missing := coll.Validate(doc); missing != "" {
			return nil, e.reject(coll, missing)
		}
		partition, _ := coll.PartitionOf(doc)
		seq, err := e.store.NextSeq(ctx, partition)
		if err != nil {
			telemetry.CountWrite(coll.Name, "rejected")
			return nil, err
		}
		setOnInsert[model.FieldServerSeq] = seq
	}

	out, err := e.store.Upsert(ctx, coll.Name, id, set, setOnInsert, nil)
	if err != nil {
		return nil, err
	}
	outcome := "updated"
	if existing == nil {
		outcome = "created"
	}
	telemetry.CountWrite(coll.Name, outcome)
	e.invalidateSummaries(ctx, coll, out)
	return out, nil
}

// Patch applies a client edit. When base is nil this degrades to last write
// wins; when base is supplied the edit is reconciled with the current server
// document through the three-way merge, and a true conflict aborts the write
// with a ConflictError carrying the server document.
func (e *Engine) Patch(ctx context.Context, coll model.Collection, doc, base model.Document) (model.Document, error) {
	id := doc.ID()
	if id == "" {
		return nil, &registrystore.ValidationError{Field: model.FieldID, Message: "each doc must include an _id"}
	}

	current, err := e.findExisting(ctx, coll.Name, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		// First write to this id: behaves like insert.
		return e.Upsert(ctx, coll, doc)
	}

	toWrite := doc.StripServerFields()
	var unset []string
	if base != nil {
		merged, conflicted := Merge(base.StripServerFields(), doc.StripServerFields(), current.StripServerFields())
		if conflicted {
			telemetry.CountWrite(coll.Name, "conflict")
			return nil, &registrystore.ConflictError{
				Message:   "three-way merge conflict",
				ServerDoc: current,
			}
		}
		// A doc that omits deleted keeps the stored flag; omission is
		// not an undelete, and the flag must never land in unset.
		if _, ok := merged[model.FieldDeleted]; !ok {
			merged[model.FieldDeleted] = current.IsDeleted()
		}
		toWrite = merged
		unset = RemovedFields(coll, current, merged)
	}

	set := toWrite.Sanitize()
	if _, ok := set[model.FieldDeleted]; !ok {
		set[model.FieldDeleted] = current.IsDeleted()
	}
	set[model.FieldUpdatedAt] = model.FormatTime(e.now())

	out, err := e.store.Upsert(ctx, coll.Name, id, set, model.Fields{model.FieldCreatedAt: set[model.FieldUpdatedAt]}, unset)
	if err != nil {
		return nil, err
	}
	telemetry.CountWrite(coll.Name, "updated")
	e.invalidateSummaries(ctx, coll, out)
	return out, nil
}

// Delete tombstones the document. Deleting an already soft-deleted document
// is idempotent; a never-created id returns NotFoundError.
func (e *Engine) Delete(ctx context.Context, coll model.Collection, id string) (model.Document, error) {
	out, err := e.store.SoftDelete(ctx, coll.Name, id)
	if err != nil {
		return nil, err
	}
	telemetry.CountWrite(coll.Name, "deleted")
	e.invalidateSummaries(ctx, coll, out)
	return out, nil
}

// Find runs a client query with the API defaults applied: soft-deleted rows
// are excluded unless the selector constrains deleted, and results come back
// in ascending server_seq order unless a sort is given.
func (e *Engine) Find(ctx context.Context, coll model.Collection, q registrystore.Query) ([]model.Document, error) {
	if q.Selector == nil {
		q.Selector = map[string]any{}
	}
	if _, ok := q.Selector[model.FieldDeleted]; !ok {
		q.Selector[model.FieldDeleted] = map[string]any{"$ne": true}
	}
	if len(q.Sort) == 0 {
		q.Sort = []registrystore.SortField{{Field: model.FieldServerSeq}}
	}
	return e.store.Find(ctx, coll.Name, q)
}

func (e *Engine) reject(coll model.Collection, missing string) error {
	telemetry.CountWrite(coll.Name, "rejected")
	return &registrystore.ValidationError{Field: missing, Message: coll.Name + " require '" + missing + "'"}
}

// findExisting maps NotFoundError to a nil document.
func (e *Engine) findExisting(ctx context.Context, collection, id string) (model.Document, error) {
	doc, err := e.store.FindOne(ctx, collection, id)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// invalidateSummaries drops the cached quickfind summaries of the written
// document's partition.
func (e *Engine) invalidateSummaries(ctx context.Context, coll model.Collection, doc model.Document) {
	if e.cache == nil || !e.cache.Available() {
		return
	}
	parent, _ := doc[coll.ParentField].(string)
	if parent == "" {
		return
	}
	if err := e.cache.Remove(ctx, coll.Name, parent); err != nil {
		log.Warn("Failed to invalidate summary cache", "collection", coll.Name, "partition", parent, "err", err)
	}
}
