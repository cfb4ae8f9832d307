package api

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yaoapp/duan/chunk"
	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/duan/model"
	"github.com/yaoapp/duan/parse"
	"github.com/yaoapp/duan/service"
)

// UploadResult reports each file of a multipart upload: stored
// documents on one side, per-file failures on the other.
type UploadResult struct {
	Documents []*model.DocumentWithConfig `json:"documents"`
	Errors    map[string]string           `json:"errors"`
}

// ConfigUpdate carries new parser and chunker configurations for a
// document. Either may be omitted.
type ConfigUpdate struct {
	Parser  *parse.Config `json:"parser,omitempty"`
	Chunker *chunk.Config `json:"chunker,omitempty"`
}

func (s *Server) listDocuments(c *gin.Context) {
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		abort(c, errs.New(errs.Validation, "invalid pagination: %s", err.Error()))
		return
	}
	list, err := s.docs.List(c.Request.Context(), p)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// uploadDocuments accepts any number of files in one multipart form. A
// file that fails validation lands in the errors map under its name
// without failing the request.
func (s *Server) uploadDocuments(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	src := c.DefaultQuery("src", "fs")
	force := c.Query("force") == "true"

	form, err := c.MultipartForm()
	if err != nil {
		abort(c, errs.New(errs.Validation, "invalid multipart form: %s", err.Error()))
		return
	}

	result := UploadResult{Documents: []*model.DocumentWithConfig{}, Errors: map[string]string{}}
	for _, headers := range form.File {
		for _, header := range headers {
			content, err := readUpload(header)
			if err != nil {
				result.Errors[header.Filename] = err.Error()
				continue
			}
			doc, err := s.docs.Upload(c.Request.Context(), service.Upload{
				Name:    header.Filename,
				Content: content,
				Src:     src,
				Force:   force,
			})
			if err != nil {
				result.Errors[header.Filename] = err.Error()
				continue
			}
			result.Documents = append(result.Documents, doc)
		}
	}
	if len(result.Documents) == 0 && len(result.Errors) == 0 {
		abort(c, errs.New(errs.Validation, "multipart form carries no files"))
		return
	}
	c.JSON(http.StatusOK, result)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	return content, nil
}

func (s *Server) getDocument(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	document, err := s.docs.Get(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

func (s *Server) updateDocument(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var update model.DocumentUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		abort(c, errs.New(errs.Validation, "invalid document update: %s", err.Error()))
		return
	}
	document, err := s.docs.Update(c.Request.Context(), id, update)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

func (s *Server) deleteDocument(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := s.docs.Delete(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) previewParse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var cfg parse.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		abort(c, errs.New(errs.Validation, "invalid parse config: %s", err.Error()))
		return
	}
	content, err := s.docs.PreviewParse(c.Request.Context(), id, cfg)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (s *Server) previewChunk(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var preview service.ChunkPreview
	if err := c.ShouldBindJSON(&preview); err != nil {
		abort(c, errs.New(errs.Validation, "invalid chunk preview: %s", err.Error()))
		return
	}
	chunks, err := s.docs.PreviewChunk(c.Request.Context(), id, preview)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, chunks)
}

func (s *Server) updateConfig(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var update ConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		abort(c, errs.New(errs.Validation, "invalid config update: %s", err.Error()))
		return
	}
	if update.Parser == nil && update.Chunker == nil {
		abort(c, errs.New(errs.Validation, "config update carries neither parser nor chunker"))
		return
	}
	ctx := c.Request.Context()
	if update.Parser != nil {
		if _, err := s.docs.UpdateParseConfig(ctx, id, *update.Parser); err != nil {
			abort(c, err)
			return
		}
	}
	if update.Chunker != nil {
		if _, err := s.docs.UpdateChunkConfig(ctx, id, *update.Chunker); err != nil {
			abort(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) syncDocuments(c *gin.Context) {
	report, err := s.docs.Sync(c.Request.Context(), c.Param("src"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) listCollectionDocuments(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	documents, err := s.docs.ListInCollection(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, documents)
}
