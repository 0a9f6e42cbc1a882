// Package collections exposes the document sync HTTP surface: upsert, patch
// with optional three-way merge, filtered listing, and soft delete, for the
// allow-listed collections.
package collections

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/convsync/sync-service/internal/model"
	registrystore "github.com/convsync/sync-service/internal/registry/store"
	syncengine "github.com/convsync/sync-service/internal/sync"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the collection routes on the given router.
// Called after store initialization so the engine is available.
func MountRoutes(r *gin.Engine, engine *syncengine.Engine) {
	r.POST("/collection/:name", func(c *gin.Context) {
		upsertDocs(c, engine)
	})
	r.PATCH("/collection/:name", func(c *gin.Context) {
		patchDocs(c, engine)
	})
	r.GET("/collection/:name", func(c *gin.Context) {
		findDocs(c, engine)
	})
	r.DELETE("/collection/:name/:id", func(c *gin.Context) {
		deleteDoc(c, engine)
	})
}

// lookup resolves the collection path parameter against the allow-list,
// answering 404 for anything else.
func lookup(c *gin.Context) (model.Collection, bool) {
	coll, ok := model.LookupCollection(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "collection not found"})
		return model.Collection{}, false
	}
	return coll, true
}

func upsertDocs(c *gin.Context, engine *syncengine.Engine) {
	coll, ok := lookup(c)
	if !ok {
		return
	}

	docs, isBatch, err := bindDocs(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	out := make([]model.Document, 0, len(docs))
	for _, doc := range docs {
		written, err := engine.Upsert(c.Request.Context(), coll, doc)
		if err != nil {
			handleError(c, err)
			return
		}
		out = append(out, written)
	}
	if isBatch {
		c.JSON(http.StatusOK, out)
	} else {
		c.JSON(http.StatusOK, out[0])
	}
}

func patchDocs(c *gin.Context, engine *syncengine.Engine) {
	coll, ok := lookup(c)
	if !ok {
		return
	}

	var req struct {
		Doc  json.RawMessage `json:"doc"`
		Base json.RawMessage `json:"base"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	if len(req.Doc) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "missing 'doc' in payload"})
		return
	}

	docs, isBatch, err := decodeDocs(req.Doc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	bases, err := decodeBases(req.Base, len(docs))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	// Items are applied in order; the first conflict aborts the response
	// and earlier items stay written. Sync clients depend on this exact
	// batch behavior.
	out := make([]model.Document, 0, len(docs))
	for i, doc := range docs {
		written, err := engine.Patch(c.Request.Context(), coll, doc, bases[i])
		if err != nil {
			handleError(c, err)
			return
		}
		out = append(out, written)
	}
	if isBatch {
		c.JSON(http.StatusOK, out)
	} else {
		c.JSON(http.StatusOK, out[0])
	}
}

func findDocs(c *gin.Context, engine *syncengine.Engine) {
	coll, ok := lookup(c)
	if !ok {
		return
	}

	selector, err := parseSelector(c.Query("selector"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	projection, err := parseFields(c.Query("fields"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	sortFields, err := parseSort(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	docs, err := engine.Find(c.Request.Context(), coll, registrystore.Query{
		Selector:   selector,
		Projection: projection,
		Sort:       sortFields,
		Limit:      limit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	c.JSON(http.StatusOK, docs)
}

func deleteDoc(c *gin.Context, engine *syncengine.Engine) {
	coll, ok := lookup(c)
	if !ok {
		return
	}
	id := c.Param("id")

	_, err := engine.Delete(c.Request.Context(), coll, id)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusGone, gin.H{"code": "gone", "error": "document not found for deletion"})
			return
		}
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", model.FieldID: id, model.FieldDeleted: true})
}

// bindDocs reads the request body as either a single document or an array.
func bindDocs(c *gin.Context) ([]model.Document, bool, error) {
	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, false, err
	}
	return decodeDocs(raw)
}

func decodeDocs(raw json.RawMessage) ([]model.Document, bool, error) {
	var batch []model.Document
	if err := json.Unmarshal(raw, &batch); err == nil {
		if len(batch) == 0 {
			return nil, true, errors.New("empty document list")
		}
		return batch, true, nil
	}
	var single model.Document
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, false, errors.New("body must be a document or an array of documents")
	}
	return []model.Document{single}, false, nil
}

// decodeBases expands the base part of a patch request to one (possibly nil)
// base per doc: an array must match the doc count, a single object or null
// applies to every doc.
func decodeBases(raw json.RawMessage, docCount int) ([]model.Document, error) {
	bases := make([]model.Document, docCount)
	if len(raw) == 0 || string(raw) == "null" {
		return bases, nil
	}
	var batch []model.Document
	if err := json.Unmarshal(raw, &batch); err == nil {
		if len(batch) != docCount {
			return nil, errors.New("'doc' and 'base' length mismatch")
		}
		return batch, nil
	}
	var single model.Document
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, errors.New("'base' must be a document, an array of documents, or null")
	}
	for i := range bases {
		bases[i] = single
	}
	return bases, nil
}

// handleError maps engine/store errors onto the API's error responses. The
// conflict response carries the current server document so the client can
// re-base and retry.
func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var retryable *registrystore.RetryableError

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"message": conflict.Message, "serverDoc": conflict.ServerDoc})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &retryable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "retryable", "error": "temporary storage failure, retry the request"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
