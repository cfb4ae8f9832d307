// Package api exposes the document and vector services over HTTP.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/service"
)

// Uploads larger than this are rejected outright.
const maxUploadSize = 50 << 20

// Server holds the services the handlers dispatch to.
type Server struct {
	docs     *service.DocumentService
	vectors  *service.VectorService
	executor *service.Executor
	info     Info
}

// Info describes the running instance: its version, the providers it
// was started with and the default collection.
type Info struct {
	Version            string            `json:"version"`
	VectorProviders    []string          `json:"vector_providers"`
	EmbeddingProviders []string          `json:"embedding_providers"`
	DocumentProviders  []string          `json:"document_providers"`
	DefaultCollection  DefaultCollection `json:"default_collection"`
}

// DefaultCollection is the /info view of the collection every
// deployment starts with.
type DefaultCollection struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Embedder string `json:"embedder"`
	Size     int    `json:"size"`
}

// NewServer wires the handlers to the services.
func NewServer(docs *service.DocumentService, vectors *service.VectorService, executor *service.Executor, info Info) *Server {
	return &Server{docs: docs, vectors: vectors, executor: executor, info: info}
}

// Router builds the gin engine with all routes registered. Requests
// from the given origins are allowed; an empty list allows everyone.
func (s *Server) Router(origins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = maxUploadSize

	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	router.Use(cors.New(cfg))

	router.GET("/_health", s.health)
	router.GET("/info", s.appInfo)

	router.GET("/documents", s.listDocuments)
	router.POST("/documents", s.uploadDocuments)
	router.GET("/documents/:id", s.getDocument)
	router.PUT("/documents/:id", s.updateDocument)
	router.DELETE("/documents/:id", s.deleteDocument)
	router.POST("/documents/:id/parse/preview", s.previewParse)
	router.POST("/documents/:id/chunk/preview", s.previewChunk)
	router.PUT("/documents/:id/config", s.updateConfig)
	router.POST("/documents/sync/:src", s.syncDocuments)

	router.GET("/collections", s.listCollections)
	router.POST("/collections", s.createCollection)
	router.GET("/collections/:id", s.getCollection)
	router.DELETE("/collections/:id", s.deleteCollection)
	router.GET("/collections/:id/documents", s.listCollectionDocuments)

	router.POST("/embeddings", s.embed)
	router.GET("/embeddings", s.listEmbeddings)
	router.POST("/embeddings/batch", s.batchEmbed)
	router.GET("/embeddings/models", s.listEmbeddingModels)
	router.GET("/embeddings/:collection/:document/count", s.countEmbeddings)
	router.DELETE("/embeddings/:collection/:document", s.deleteEmbeddings)

	router.POST("/search", s.search)

	return router
}

func (s *Server) health(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) appInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.info)
}

// abort maps a service error onto its HTTP status. Internal errors stay
// opaque; everything else surfaces its message.
func abort(c *gin.Context, err error) {
	status, location := http.StatusInternalServerError, ""
	if e, ok := err.(*errs.Error); ok {
		status, location = e.Status(), e.Location()
	}
	if status >= http.StatusInternalServerError {
		log.Error("%s %s: %s (%s)", c.Request.Method, c.Request.URL.Path, err, location)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	log.Debug("%s %s: %s", c.Request.Method, c.Request.URL.Path, err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// uuidParam parses a uuid path parameter, aborting the request when it
// does not parse.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abort(c, errs.New(errs.Validation, "invalid %s %q", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}
