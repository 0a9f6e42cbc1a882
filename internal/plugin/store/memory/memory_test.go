package memory

import (
	"context"
	"testing"

	"github.com/convsync/sync-service/internal/model"
	registrystore "github.com/convsync/sync-service/internal/registry/store"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	doc := model.Document{
		"_id":        "m1",
		"conv_id":    "c1",
		"server_seq": int64(1500),
		"deleted":    false,
		"rev":        int64(2),
	}

	cases := []struct {
		name     string
		selector map[string]any
		want     bool
	}{
		{"exact match", map[string]any{"conv_id": "c1"}, true},
		{"exact mismatch", map[string]any{"conv_id": "c2"}, false},
		{"numeric coercion", map[string]any{"rev": float64(2)}, true},
		{"ne excludes match", map[string]any{"deleted": map[string]any{"$ne": false}}, false},
		{"ne passes absent field", map[string]any{"missing": map[string]any{"$ne": true}}, true},
		{"seq range hit", map[string]any{"server_seq": map[string]any{"$gte": int64(1000), "$lt": int64(2000)}}, true},
		{"seq range miss", map[string]any{"server_seq": map[string]any{"$gte": int64(2000), "$lt": int64(3000)}}, false},
		{"in", map[string]any{"conv_id": map[string]any{"$in": []any{"c1", "c9"}}}, true},
		{"exists true", map[string]any{"rev": map[string]any{"$exists": true}}, true},
		{"exists false", map[string]any{"missing": map[string]any{"$exists": false}}, true},
		{"unknown operator rejects", map[string]any{"rev": map[string]any{"$regex": "x"}}, false},
		{"empty selector", map[string]any{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, matches(doc, tc.selector))
		})
	}
}

func TestUpsertSemantics(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc, err := s.Upsert(ctx, "messages", "m1",
		model.Fields{"content": "v1"},
		model.Fields{model.FieldServerSeq: int64(7), model.FieldCreatedAt: "2026-01-01T00:00:00Z"},
		nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.Rev())
	require.Equal(t, int64(7), doc.ServerSeq())

	// setOnInsert is ignored on update, unset removes fields.
	doc, err = s.Upsert(ctx, "messages", "m1",
		model.Fields{"title": "t"},
		model.Fields{model.FieldServerSeq: int64(99)},
		[]string{"content"})
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.Rev())
	require.Equal(t, int64(7), doc.ServerSeq())
	require.NotContains(t, doc, "content")
	require.Equal(t, "t", doc["title"])
}

func TestUpsertReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc, err := s.Upsert(ctx, "messages", "m1", model.Fields{"content": "v1"}, model.Fields{}, nil)
	require.NoError(t, err)
	doc["content"] = "mutated"

	stored, err := s.FindOne(ctx, "messages", "m1")
	require.NoError(t, err)
	require.Equal(t, "v1", stored["content"])
}

func TestFindSortLimitProjection(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, id := range []string{"m1", "m2", "m3"} {
		_, err := s.Upsert(ctx, "messages", id,
			model.Fields{"conv_id": "c1", "content": id, model.FieldServerSeq: int64(i + 1)},
			model.Fields{}, nil)
		require.NoError(t, err)
	}

	docs, err := s.Find(ctx, "messages", registrystore.Query{
		Selector:   map[string]any{"conv_id": "c1"},
		Sort:       []registrystore.SortField{{Field: model.FieldServerSeq, Desc: true}},
		Limit:      2,
		Projection: map[string]int{model.FieldServerSeq: 1},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, int64(3), docs[0].ServerSeq())
	require.Equal(t, "m3", docs[0].ID())
	require.NotContains(t, docs[0], "content")
}

func TestSoftDeleteAndNextSeq(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.SoftDelete(ctx, "messages", "missing")
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = s.Upsert(ctx, "messages", "m1", model.Fields{"conv_id": "c1"}, model.Fields{}, nil)
	require.NoError(t, err)
	doc, err := s.SoftDelete(ctx, "messages", "m1")
	require.NoError(t, err)
	require.True(t, doc.IsDeleted())
	require.Equal(t, int64(2), doc.Rev())

	seq, err := s.NextSeq(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
	seq, err = s.NextSeq(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(2), seq)
	seq, err = s.NextSeq(ctx, "conv:u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
}
