package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
	"github.com/yaoapp/duan/service"
)

// EmbedRequest names the document to embed and the collection to hold
// the vectors.
type EmbedRequest struct {
	Document   uuid.UUID `json:"document"`
	Collection uuid.UUID `json:"collection"`
}

// BatchRequest embeds and removes documents in one background job.
type BatchRequest struct {
	Collection uuid.UUID   `json:"collection"`
	Add        []uuid.UUID `json:"add"`
	Remove     []uuid.UUID `json:"remove"`
}

func (s *Server) listCollections(c *gin.Context) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		abort(c, errs.New(errs.Validation, "invalid pagination: %s", err.Error()))
		return
	}
	list, err := s.vectors.ListCollections(c.Request.Context(), p)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createCollection(c *gin.Context) {
	var create service.CollectionCreate
	if err := c.ShouldBindJSON(&create); err != nil {
		abort(c, errs.New(errs.Validation, "invalid collection payload: %s", err.Error()))
		return
	}
	collection, err := s.vectors.CreateCollection(c.Request.Context(), create)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (s *Server) getCollection(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	collection, err := s.vectors.GetCollection(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (s *Server) deleteCollection(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := s.vectors.DeleteCollection(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) embed(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errs.New(errs.Validation, "invalid embedding payload: %s", err.Error()))
		return
	}
	embedding, err := s.vectors.Embed(c.Request.Context(), req.Document, req.Collection)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, embedding)
}

func (s *Server) listEmbeddings(c *gin.Context) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		abort(c, errs.New(errs.Validation, "invalid pagination: %s", err.Error()))
		return
	}
	var collectionID *uuid.UUID
	if raw := c.Query("collection"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			abort(c, errs.New(errs.Validation, "invalid collection %q", raw))
			return
		}
		collectionID = &id
	}
	list, err := s.vectors.ListEmbeddings(c.Request.Context(), p, collectionID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// batchEmbed submits a background job and streams its progress as
// server-sent events until the terminal event.
func (s *Server) batchEmbed(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errs.New(errs.Validation, "invalid batch payload: %s", err.Error()))
		return
	}

	// Three events per document plus the terminal one, so the executor
	// never has to drop any.
	progress := make(chan service.BatchEvent, 3*(len(req.Add)+len(req.Remove))+1)
	job := &service.BatchJob{
		CollectionID: req.Collection,
		Add:          req.Add,
		Remove:       req.Remove,
		Progress:     progress,
	}
	if err := s.executor.Submit(job); err != nil {
		abort(c, err)
		return
	}

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-progress:
			c.SSEvent("message", event)
			return event.Status != service.BatchFinished
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) listEmbeddingModels(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		abort(c, errs.New(errs.Validation, "provider is required"))
		return
	}
	models, err := s.vectors.ListEmbeddingModels(c.Request.Context(), provider)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, models)
}

func (s *Server) countEmbeddings(c *gin.Context) {
	collectionID, ok := uuidParam(c, "collection")
	if !ok {
		return
	}
	documentID, ok := uuidParam(c, "document")
	if !ok {
		return
	}
	count, err := s.vectors.CountEmbeddings(c.Request.Context(), documentID, collectionID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *Server) deleteEmbeddings(c *gin.Context) {
	collectionID, ok := uuidParam(c, "collection")
	if !ok {
		return
	}
	documentID, ok := uuidParam(c, "document")
	if !ok {
		return
	}
	if err := s.vectors.DeleteEmbeddings(c.Request.Context(), documentID, collectionID); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) search(c *gin.Context) {
	var search service.Search
	if err := c.ShouldBindJSON(&search); err != nil {
		abort(c, errs.New(errs.Validation, "invalid search payload: %s", err.Error()))
		return
	}
	results, err := s.vectors.Search(c.Request.Context(), search)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
