// Document endpoints. Uploads arrive from the UI as multipart and are
// relayed upstream while progress streams back as server-sent events.
package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docqa-web/internal/apiclient"
	"github.com/tbourn/go-docqa-web/internal/documents"
	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/http/middleware"
	"github.com/tbourn/go-docqa-web/internal/security"
	"github.com/tbourn/go-docqa-web/internal/utils"
)

// ValidateRequest describes a file to dry-run against the upload policy.
type ValidateRequest struct {
	Name string `json:"name" example:"report.pdf"`
	Size int64  `json:"size" example:"1024"`
	Type string `json:"type" example:"application/pdf"`
}

// ValidateResponse lists policy violations in rule order.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// uploadErrorEvent is the SSE payload of a failed upload.
type uploadErrorEvent struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// ListDocuments godoc
// @ID          listDocuments
// @Summary     List documents
// @Tags        Documents
// @Produce     json
// @Param       page    query     int     false  "Page"       minimum(1) default(1)
// @Param       limit   query     int     false  "Page size"  minimum(1) maximum(100) default(10)
// @Param       search  query     string  false  "Name filter"
// @Success     200     {object}  domain.DocumentPage
// @Failure     502     {object}  handlers.ErrorResponse
// @Router      /documents [get]
func (h *Handlers) ListDocuments(c *gin.Context) {
	page, limit := utils.ParsePage(c.Query("page"), c.Query("limit"))
	res, err := h.docs.List(c.Request.Context(), documents.ListOptions{
		Page:   page,
		Limit:  limit,
		Search: strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// GetDocument godoc
// @ID          getDocument
// @Summary     Get a document
// @Tags        Documents
// @Produce     json
// @Param       id   path      string  true  "Document ID"
// @Success     200  {object}  domain.Document
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /documents/{id} [get]
func (h *Handlers) GetDocument(c *gin.Context) {
	doc, err := h.docs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, doc)
}

// UpdateDocument godoc
// @ID          updateDocument
// @Summary     Rename a document or replace its metadata
// @Tags        Documents
// @Accept      json
// @Produce     json
// @Param       id    path      string                 true  "Document ID"
// @Param       body  body      domain.DocumentUpdate  true  "Changes"
// @Success     200   {object}  domain.Document
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /documents/{id} [patch]
func (h *Handlers) UpdateDocument(c *gin.Context) {
	var upd domain.DocumentUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	doc, err := h.docs.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, doc)
}

// DeleteDocument godoc
// @ID          deleteDocument
// @Summary     Delete a document
// @Tags        Documents
// @Param       id   path  string  true  "Document ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /documents/{id} [delete]
func (h *Handlers) DeleteDocument(c *gin.Context) {
	if err := h.docs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	h.track.TrackUserAction("delete_document", "documents", c.Param("id"), h.userID(c))
	noContent(c)
}

// DownloadDocument godoc
// @ID          downloadDocument
// @Summary     Download a document's content
// @Tags        Documents
// @Produce     octet-stream
// @Param       id   path  string  true  "Document ID"
// @Success     200
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /documents/{id}/download [get]
func (h *Handlers) DownloadDocument(c *gin.Context) {
	body, ctype, err := h.docs.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	defer body.Close()
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, ctype, body, nil)
}

// ValidateFile godoc
// @ID          validateFile
// @Summary     Dry-run a file against the upload policy
// @Tags        Documents
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ValidateRequest  true  "File description"
// @Success     200   {object}  handlers.ValidateResponse
// @Router      /documents/validate [post]
func (h *Handlers) ValidateFile(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	errs := h.files.Violations(security.FileInfo{Name: req.Name, Size: req.Size, Type: req.Type})
	if errs == nil {
		errs = []string{}
	}
	ok(c, http.StatusOK, ValidateResponse{Valid: len(errs) == 0, Errors: errs})
}

// UploadDocument godoc
// @ID          uploadDocument
// @Summary     Upload a document with streamed progress
// @Description Validation failures answer 400 before streaming starts. Otherwise the response is text/event-stream: "progress" events, then exactly one "done" (the document) or "error" event.
// @Tags        Documents
// @Accept      multipart/form-data
// @Produce     text/event-stream
// @Param       file      formData  file    true   "Document"
// @Param       metadata  formData  string  false  "JSON object"
// @Success     200
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /documents/upload [post]
func (h *Handlers) UploadDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file is required")
		return
	}
	var meta map[string]any
	if raw := strings.TrimSpace(c.PostForm("metadata")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "metadata must be a JSON object")
			return
		}
	}

	src, err := sourceFromForm(fh)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file")
		return
	}
	uid := h.userID(c)
	events, err := h.docs.Upload(c.Request.Context(), src, meta)
	if err != nil {
		failErr(c, err)
		return
	}
	h.track.TrackFileUpload(src.Name, src.Size, uid)

	startSSE(c)
	for ev := range events {
		switch {
		case ev.Err != nil:
			middleware.LoggerFrom(c).Warn().
				Int("upstream_status", apiclient.StatusOf(ev.Err)).
				Str("file", src.Name).
				Msg("upload stream ended with error")
			sendSSE(c, "error", uploadErrorEvent{Progress: ev.Progress, Message: ev.Err.Error()})
		case ev.Document != nil:
			sendSSE(c, "done", ev.Document)
		default:
			sendSSE(c, "progress", ev)
		}
	}
}

// sourceFromForm describes the uploaded part. A missing or generic
// Content-Type is replaced by sniffing the first bytes.
func sourceFromForm(fh *multipart.FileHeader) (documents.Source, error) {
	ctype := fh.Header.Get("Content-Type")
	if ctype == "" || ctype == "application/octet-stream" {
		f, err := fh.Open()
		if err != nil {
			return documents.Source{}, err
		}
		ctype, err = security.DetectType(f)
		f.Close()
		if err != nil {
			return documents.Source{}, err
		}
	}
	return documents.Source{
		Name: fh.Filename,
		Size: fh.Size,
		Type: ctype,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}, nil
}
