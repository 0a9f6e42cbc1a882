package model

// Collection describes one synchronized collection kind: its required parent
// field and how sequence counters and quickfind requests are partitioned.
// The set of collections is closed; handlers select entries from this table
// instead of branching on the path parameter.
type Collection struct {
	// Name is the collection name as it appears in the URL and in storage.
	Name string

	// ParentField is the required foreign key to the document's logical
	// parent (conv_id for messages, user_id for conversations).
	ParentField string

	// SeqPartition maps the parent key to the sequence counter key. Kept
	// bit-compatible with the existing counter rows: messages use the
	// conversation id directly, conversations use "conv:" + user id.
	SeqPartition func(parent string) string

	// DefaultLimitDocs caps quickfind document payloads when the request
	// does not supply limit_docs.
	DefaultLimitDocs int

	// DefaultProjection limits quickfind document payloads to these fields
	// when the request does not ask for specific ones. Nil means full
	// documents.
	DefaultProjection []string
}

// Validate reports the name of a missing required field, or "" when the
// document is acceptable.
func (c Collection) Validate(doc Document) string {
	if s, _ := doc[c.ParentField].(string); s == "" {
		return c.ParentField
	}
	return ""
}

// PartitionOf returns the sequence counter key for the document, or false
// when the parent field is missing.
func (c Collection) PartitionOf(doc Document) (string, bool) {
	parent, _ := doc[c.ParentField].(string)
	if parent == "" {
		return "", false
	}
	return c.SeqPartition(parent), true
}

var (
	// Messages are sequenced per conversation.
	Messages = Collection{
		Name:             "messages",
		ParentField:      "conv_id",
		SeqPartition:     func(parent string) string { return parent },
		DefaultLimitDocs: 5000,
		DefaultProjection: []string{
			FieldID, "conv_id", "user_id", "role", "content",
			FieldDeleted, FieldServerSeq, FieldUpdatedAt, FieldRev,
		},
	}

	// Conversations are sequenced per owning user.
	Conversations = Collection{
		Name:             "conversations",
		ParentField:      "user_id",
		SeqPartition:     func(parent string) string { return "conv:" + parent },
		DefaultLimitDocs: 1000,
	}
)

var collections = map[string]Collection{
	Messages.Name:      Messages,
	Conversations.Name: Conversations,
}

// LookupCollection resolves an allow-listed collection by name.
func LookupCollection(name string) (Collection, bool) {
	c, ok := collections[name]
	return c, ok
}

// CollectionNames lists the allow-listed collection names.
func CollectionNames() []string {
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	return names
}

// BucketSummary is one quickfind bucket digest: the row count and the hash
// over the bucket's (id, rev, deleted) triples.
type BucketSummary struct {
	Count int    `json:"count"`
	Hash  string `json:"hash"`
}
