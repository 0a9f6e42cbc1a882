package quickfind

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/convsync/sync-service/internal/model"
	"github.com/convsync/sync-service/internal/plugin/store/memory"
	syncengine "github.com/convsync/sync-service/internal/sync"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type response struct {
	ConvID         string                         `json:"conv_id"`
	UserID         string                         `json:"user_id"`
	ChangedBuckets []int64                        `json:"changed_buckets"`
	Summaries      map[string]model.BucketSummary `json:"summaries"`
	Docs           []model.Document               `json:"docs"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *syncengine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := syncengine.New(memory.New(), nil, 0)
	r := gin.New()
	MountRoutes(r, engine)
	return r, engine
}

func post(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func seed(t *testing.T, engine *syncengine.Engine, conv string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := engine.Upsert(context.Background(), model.Messages, model.Document{
			"_id":     fmt.Sprintf("%s-m%d", conv, i),
			"conv_id": conv,
		})
		require.NoError(t, err)
	}
}

func TestQuickfindMessages_EmptyManifest(t *testing.T) {
	r, engine := newTestRouter(t)
	seed(t, engine, "c1", 3)

	rec := post(t, r, "/collection/messages/quickfind", `{"conv_id":"c1","client":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "c1", res.ConvID)
	require.Equal(t, []int64{0}, res.ChangedBuckets)
	require.Equal(t, 3, res.Summaries["0"].Count)
	require.Len(t, res.Docs, 3)
}

func TestQuickfindMessages_UpToDateClient(t *testing.T) {
	r, engine := newTestRouter(t)
	seed(t, engine, "c1", 3)

	first := post(t, r, "/collection/messages/quickfind", `{"conv_id":"c1"}`)
	var baseline response
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &baseline))

	body := fmt.Sprintf(`{"conv_id":"c1","client":[{"bucket":0,"count":%d,"hash":%q}]}`,
		baseline.Summaries["0"].Count, baseline.Summaries["0"].Hash)
	rec := post(t, r, "/collection/messages/quickfind", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Empty(t, res.ChangedBuckets)
	require.Empty(t, res.Docs)
}

func TestQuickfindMessages_FieldsAndLimit(t *testing.T) {
	r, engine := newTestRouter(t)
	seed(t, engine, "c1", 10)

	rec := post(t, r, "/collection/messages/quickfind",
		`{"conv_id":"c1","client":[],"fields":["content"],"limit_docs":4}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Docs, 4)
	for _, d := range res.Docs {
		require.NotContains(t, d, "conv_id")
	}
}

func TestQuickfindConversations_PartitionedByUser(t *testing.T) {
	r, engine := newTestRouter(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := engine.Upsert(ctx, model.Conversations, model.Document{
			"_id": fmt.Sprintf("c%d", i), "user_id": "u1", "title": "t",
		})
		require.NoError(t, err)
	}
	_, err := engine.Upsert(ctx, model.Conversations, model.Document{"_id": "cx", "user_id": "u2"})
	require.NoError(t, err)

	rec := post(t, r, "/collection/conversations/quickfind", `{"user_id":"u1","client":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "u1", res.UserID)
	require.Len(t, res.Docs, 2)
	require.Equal(t, 2, res.Summaries["0"].Count)
}

func TestQuickfind_MissingPartitionKey400(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := post(t, r, "/collection/messages/quickfind", `{"client":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The conversations endpoint keys on user_id, not conv_id.
	rec = post(t, r, "/collection/conversations/quickfind", `{"conv_id":"c1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuickfind_UnknownCollection404(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := post(t, r, "/collection/users/quickfind", `{"user_id":"u1"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
