package model

import (
	"reflect"
	"time"
)

// Server-managed document fields. Clients may send them but every write path
// strips them and recomputes them server-side.
const (
	FieldID        = "_id"
	FieldRev       = "rev"
	FieldCreatedAt = "created_at_server"
	FieldUpdatedAt = "updated_at_server"
	FieldDeleted   = "deleted"
	FieldServerSeq = "server_seq"
)

// serverOnly are the fields clients can never set directly. The deleted flag
// is not in this set: clients may flip it through normal writes, matching the
// wire behavior sync clients depend on.
var serverOnly = map[string]bool{
	FieldRev:       true,
	FieldCreatedAt: true,
	FieldUpdatedAt: true,
	FieldServerSeq: true,
}

// ServerManaged reports whether clients are forbidden from setting the field.
func ServerManaged(field string) bool { return serverOnly[field] }

// Fields is a partial document used for $set / $setOnInsert style updates.
type Fields = map[string]any

// Document is an opaque collection-scoped record. Application fields are
// owned by the client; server-managed fields are listed above.
type Document map[string]any

// ID returns the document id, or "" when unset.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Rev returns the optimistic-lock revision, 0 when unset.
func (d Document) Rev() int64 { return toInt64(d[FieldRev]) }

// ServerSeq returns the partition-scoped sequence number, 0 when unset.
func (d Document) ServerSeq() int64 { return toInt64(d[FieldServerSeq]) }

// IsDeleted reports whether the document is a tombstone.
func (d Document) IsDeleted() bool {
	b, _ := d[FieldDeleted].(bool)
	return b
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// StripServerFields returns a copy with the server-managed fields removed.
// The id is kept; merge and sanitize handle it separately.
func (d Document) StripServerFields() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if serverOnly[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// Sanitize returns the client-settable fields of the document: everything
// except the id and the server-managed fields.
func (d Document) Sanitize() Fields {
	out := make(Fields, len(d))
	for k, v := range d {
		if k == FieldID || serverOnly[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// FormatTime renders a server timestamp. Timestamps are stored as RFC 3339
// UTC strings so documents round-trip identically through JSON and BSON.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ValueEqual compares two field values the way the merge algorithm needs:
// numbers compare by value regardless of the wire type they decoded into
// (JSON gives float64, BSON gives int32/int64), everything else compares
// structurally.
func ValueEqual(a, b any) bool {
	if af, aok := toFloat64(a); aok {
		bf, bok := toFloat64(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
