// Package quickfind exposes the bucketed delta-reconciliation endpoints:
// clients post their per-bucket digests and get back the changed buckets,
// the new baseline summaries, and the changed buckets' documents.
package quickfind

import (
	"errors"
	"net/http"

	"github.com/convsync/sync-service/internal/model"
	registrystore "github.com/convsync/sync-service/internal/registry/store"
	syncengine "github.com/convsync/sync-service/internal/sync"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the quickfind routes on the given router. The path
// parameter shares the tree with the collection routes, so the handler
// itself checks the collection is one of the quickfind-enabled kinds.
func MountRoutes(r *gin.Engine, engine *syncengine.Engine) {
	r.POST("/collection/:name/quickfind", func(c *gin.Context) {
		quickfind(c, engine)
	})
}

type clientBucket struct {
	Bucket int64  `json:"bucket"`
	Count  int    `json:"count"`
	Hash   string `json:"hash"`
}

type request struct {
	ConvID    string         `json:"conv_id"`
	UserID    string         `json:"user_id"`
	Client    []clientBucket `json:"client"`
	Fields    []string       `json:"fields"`
	LimitDocs int            `json:"limit_docs"`
}

func quickfind(c *gin.Context, engine *syncengine.Engine) {
	coll, ok := model.LookupCollection(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "collection not found"})
		return
	}

	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	// Messages reconcile per conversation, conversations per user.
	var parent string
	var keyField string
	switch coll.Name {
	case model.Messages.Name:
		parent, keyField = req.ConvID, "conv_id"
	case model.Conversations.Name:
		parent, keyField = req.UserID, "user_id"
	}
	if parent == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": keyField + " is required"})
		return
	}

	manifest := make(map[int64]model.BucketSummary, len(req.Client))
	for _, s := range req.Client {
		if s.Bucket < 0 {
			continue
		}
		manifest[s.Bucket] = model.BucketSummary{Count: s.Count, Hash: s.Hash}
	}

	result, err := engine.Quickfind(c.Request.Context(), coll, parent, manifest, req.Fields, req.LimitDocs)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		keyField:          parent,
		"changed_buckets": result.ChangedBuckets,
		"summaries":       result.Summaries,
		"docs":            result.Docs,
	})
}

func handleError(c *gin.Context, err error) {
	var retryable *registrystore.RetryableError
	if errors.As(err, &retryable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "retryable", "error": "temporary storage failure, retry the request"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
