package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-board-api/internal/service"
	appErrors "github.com/noah-isme/campus-board-api/pkg/errors"
	"github.com/noah-isme/campus-board-api/pkg/response"
)

// NoticeHandler wires HTTP endpoints to the notice service.
type NoticeHandler struct {
	service   *service.NoticeService
	maxUpload int64
}

// NewNoticeHandler creates a new handler. maxUpload bounds attachment size
// in bytes; zero means no limit.
func NewNoticeHandler(svc *service.NoticeService, maxUpload int64) *NoticeHandler {
	return &NoticeHandler{service: svc, maxUpload: maxUpload}
}

// List godoc
// @Summary List notices
// @Description List notices visible to the viewer with optional filters
// @Tags Notices
// @Produce json
// @Param q query string false "Search text"
// @Param category query string false "Category filter, or 'all'"
// @Param department query string false "Department filter, or 'all'"
// @Param from query string false "Creation lower bound (RFC3339)"
// @Param until query string false "Creation upper bound (RFC3339)"
// @Param sort query string false "newest or oldest"
// @Success 200 {object} response.Envelope
// @Router /notices [get]
func (h *NoticeHandler) List(c *gin.Context) {
	req := service.ListNoticesRequest{
		Query:      c.Query("q"),
		Category:   c.Query("category"),
		Department: c.Query("department"),
		Sort:       c.Query("sort"),
	}

	var err error
	if req.From, err = parseTimeParam(c.Query("from")); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid 'from' timestamp"))
		return
	}
	if req.Until, err = parseTimeParam(c.Query("until")); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid 'until' timestamp"))
		return
	}

	items, err := h.service.List(c.Request.Context(), viewerRole(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}

// Get godoc
// @Summary Get a notice
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/{id} [get]
func (h *NoticeHandler) Get(c *gin.Context) {
	notice, err := h.service.Get(c.Request.Context(), c.Param("id"), viewerRole(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notice, nil)
}

// Create godoc
// @Summary Create a notice
// @Description Create a notice; multipart form with an optional attachment file
// @Tags Notices
// @Accept mpfd
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notices [post]
func (h *NoticeHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateNoticeRequest
	var upload *service.Upload

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, up, err := h.parseMultipart(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		req, upload = parsed, up
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notice payload"))
		return
	}

	notice, err := h.service.Create(c.Request.Context(), claims, req, upload)
	if upload != nil && upload.Reader != nil {
		if closer, ok := upload.Reader.(multipart.File); ok {
			closer.Close()
		}
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, notice)
}

// Update godoc
// @Summary Update a notice
// @Tags Notices
// @Accept json
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/{id} [put]
func (h *NoticeHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateNoticeRequest
	var upload *service.Upload

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, up, err := h.parseMultipartUpdate(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		req, upload = parsed, up
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notice payload"))
		return
	}

	notice, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req, upload)
	if upload != nil && upload.Reader != nil {
		if closer, ok := upload.Reader.(multipart.File); ok {
			closer.Close()
		}
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, notice, nil)
}

// Delete godoc
// @Summary Delete a notice
// @Tags Notices
// @Param id path string true "Notice ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/{id} [delete]
func (h *NoticeHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Notice statistics
// @Description Aggregate counts by category across the whole board
// @Tags Notices
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notices/stats [get]
func (h *NoticeHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export notices
// @Description Download the viewer-visible notices as CSV or PDF
// @Tags Notices
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /notices/export [get]
func (h *NoticeHandler) Export(c *gin.Context) {
	payload, contentType, filename, err := h.service.Export(c.Request.Context(), viewerRole(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, payload)
}

// AttachmentLink godoc
// @Summary Signed attachment link
// @Description Issue a time-limited download token for a notice's attachment
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/{id}/attachment [get]
func (h *NoticeHandler) AttachmentLink(c *gin.Context) {
	token, err := h.service.AttachmentToken(c.Request.Context(), c.Param("id"), viewerRole(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token, "url": "/attachments/" + token}, nil)
}

// DownloadAttachment godoc
// @Summary Download attachment
// @Description Stream the attachment referenced by a signed token
// @Tags Notices
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /attachments/{token} [get]
func (h *NoticeHandler) DownloadAttachment(c *gin.Context) {
	file, name, err := h.service.ResolveAttachment(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat attachment"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), file)
}

func (h *NoticeHandler) parseMultipart(c *gin.Context) (service.CreateNoticeRequest, *service.Upload, error) {
	req := service.CreateNoticeRequest{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
	}
	if dept := c.PostForm("department"); dept != "" {
		req.Department = &dept
	}
	if roles := c.PostFormArray("visible_to"); len(roles) > 0 {
		req.VisibleTo = roles
	}
	req.IsPinned = parseBoolField(c.PostForm("is_pinned"))
	expiry, err := parseTimeParam(c.PostForm("expiry_date"))
	if err != nil {
		return req, nil, appErrors.Clone(appErrors.ErrValidation, "invalid expiry date")
	}
	req.ExpiryDate = expiry

	upload, err := h.fileUpload(c)
	return req, upload, err
}

func (h *NoticeHandler) parseMultipartUpdate(c *gin.Context) (service.UpdateNoticeRequest, *service.Upload, error) {
	var req service.UpdateNoticeRequest
	if v, ok := c.GetPostForm("title"); ok {
		req.Title = &v
	}
	if v, ok := c.GetPostForm("description"); ok {
		req.Description = &v
	}
	if v, ok := c.GetPostForm("category"); ok {
		req.Category = &v
	}
	if v, ok := c.GetPostForm("department"); ok {
		req.Department = &v
	}
	if roles := c.PostFormArray("visible_to"); len(roles) > 0 {
		req.VisibleTo = roles
	}
	if v, ok := c.GetPostForm("is_pinned"); ok {
		pinned := parseBoolField(v)
		req.IsPinned = &pinned
	}
	if v, ok := c.GetPostForm("expiry_date"); ok {
		if v == "" {
			req.ClearExpiry = true
		} else {
			expiry, err := parseTimeParam(v)
			if err != nil {
				return req, nil, appErrors.Clone(appErrors.ErrValidation, "invalid expiry date")
			}
			req.ExpiryDate = expiry
		}
	}

	upload, err := h.fileUpload(c)
	return req, upload, err
}

func (h *NoticeHandler) fileUpload(c *gin.Context) (*service.Upload, error) {
	fileHeader, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		// Attachment is optional.
		return nil, nil
	}
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed attachment upload")
	}
	if h.maxUpload > 0 && fileHeader.Size > h.maxUpload {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attachment exceeds maximum size")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUploadFailed.Code, appErrors.ErrUploadFailed.Status, "failed to read attachment")
	}
	return &service.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      file,
	}, nil
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, strconv.ErrSyntax
}

func parseBoolField(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
