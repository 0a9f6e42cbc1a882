package sync

import "github.com/convsync/sync-service/internal/model"

// Merge reconciles a client edit against the current server document using
// their common ancestor. All three inputs must already have server-managed
// fields stripped; the id field is ignored.
//
// Fields the client changed relative to base are applied when the server
// still holds the base value; fields the client removed are deleted under
// the same condition. Any field where both sides diverged from base marks
// the result conflicted, and the server value stands. This merges
// disjoint-field edits from two clients without data loss and only flags a
// conflict when both touched the same field.
func Merge(base, client, server model.Document) (model.Document, bool) {
	merged := server.Clone()
	if merged == nil {
		merged = model.Document{}
	}
	conflicted := false

	for k, clientVal := range client {
		if k == model.FieldID {
			continue
		}
		baseVal, inBase := base[k]
		if inBase && model.ValueEqual(baseVal, clientVal) {
			continue // unchanged by the client
		}
		serverVal, inServer := server[k]
		if inBase == inServer && (!inBase || model.ValueEqual(serverVal, baseVal)) {
			merged[k] = clientVal
		} else {
			conflicted = true
		}
	}

	for k := range base {
		if k == model.FieldID {
			continue
		}
		if _, inClient := client[k]; inClient {
			continue // not a removal
		}
		serverVal, inServer := server[k]
		if inServer && model.ValueEqual(serverVal, base[k]) {
			delete(merged, k)
		} else {
			conflicted = true
		}
	}

	return merged, conflicted
}

// RemovedFields lists the application fields present in the current server
// document but absent from the merged result, so the write path can unset
// them in storage. The id, the collection's partition key, and
// server-managed fields are never removed; unsetting the partition key
// would strand the row outside every quickfind and listing selector.
func RemovedFields(coll model.Collection, server, merged model.Document) []string {
	var removed []string
	for k := range server {
		if k == model.FieldID || k == coll.ParentField || model.ServerManaged(k) {
			continue
		}
		if _, ok := merged[k]; !ok {
			removed = append(removed, k)
		}
	}
	return removed
}
