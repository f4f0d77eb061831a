package api

import (
	"context"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/service"
)

// ownerCheck returns service.ErrNotFound when ownerID cannot see parentID.
type ownerCheck func(ctx context.Context, ownerID, parentID string) error

type attachmentKind struct {
	files service.AttachmentService
	owns  ownerCheck
}

// AttachmentHandler serves the attachment routes of both parent kinds.
type AttachmentHandler struct {
	kinds map[domain.ParentKind]attachmentKind
	log   *zap.Logger
}

func NewAttachmentHandler(
	campaigns service.CampaignService,
	campaignFiles service.AttachmentService,
	submissions service.SubmissionService,
	submissionFiles service.AttachmentService,
	log *zap.Logger,
) *AttachmentHandler {
	return &AttachmentHandler{
		kinds: map[domain.ParentKind]attachmentKind{
			domain.KindCampaign: {
				files: campaignFiles,
				owns: func(ctx context.Context, ownerID, parentID string) error {
					_, err := campaigns.Get(ctx, ownerID, parentID)
					return err
				},
			},
			domain.KindSubmission: {
				files: submissionFiles,
				owns: func(ctx context.Context, ownerID, parentID string) error {
					_, err := submissions.Get(ctx, ownerID, parentID)
					return err
				},
			},
		},
		log: log,
	}
}

// --- DTOs ---

type AttachmentResponse struct {
	ID               string    `json:"id"`
	ParentKind       string    `json:"parentKind"`
	ParentID         string    `json:"parentId"`
	OriginalFilename string    `json:"originalFilename"`
	ContentType      string    `json:"contentType"`
	SizeBytes        int64     `json:"sizeBytes"`
	DownloadURL      *string   `json:"downloadUrl"`
	CreatedAt        time.Time `json:"createdAt"`
}

type URLResponse struct {
	URL string `json:"url"`
}

func MapAttachmentToResponse(a *domain.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:               a.ID,
		ParentKind:       string(a.ParentKind),
		ParentID:         a.ParentID,
		OriginalFilename: a.OriginalFilename,
		ContentType:      a.ContentType,
		SizeBytes:        a.SizeBytes,
		DownloadURL:      a.DownloadURL,
		CreatedAt:        a.CreatedAt,
	}
}

func MapAttachmentsToResponse(list []domain.Attachment) []AttachmentResponse {
	out := make([]AttachmentResponse, 0, len(list))
	for i := range list {
		out = append(out, MapAttachmentToResponse(&list[i]))
	}
	return out
}

// --- Parent-scoped routes ---

// UploadFor godoc
// @Summary Attach files to a campaign or submission
// @Description Multipart upload; accepts "file" and/or repeated "files[]" parts.
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Success 201 {array} AttachmentResponse
// @Failure 413 {object} gin.H "File too large"
// @Failure 415 {object} gin.H "File type not allowed"
// @Failure 503 {object} gin.H "Storage unavailable"
// @Router /campaigns/{id}/attachments [post]
func (h *AttachmentHandler) UploadFor(kind domain.ParentKind) gin.HandlerFunc {
	k := h.kinds[kind]
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		parentID := c.Param("id")
		if err := k.owns(c.Request.Context(), userID, parentID); err != nil {
			respondError(c, h.log, err)
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Expected a multipart/form-data body")
			return
		}
		headers := uploadedFiles(form)
		if len(headers) == 0 {
			abortWithError(c, http.StatusBadRequest, "No file provided")
			return
		}

		sources, closeAll, err := openFiles(headers)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Could not read uploaded file")
			return
		}
		defer closeAll()

		// Validate everything first so a bad file stores nothing.
		prepared := make([]*service.PreparedFile, 0, len(sources))
		for _, src := range sources {
			p, err := k.files.Prepare(src)
			if err != nil {
				respondError(c, h.log, err)
				return
			}
			prepared = append(prepared, p)
		}

		stored := make([]domain.Attachment, 0, len(prepared))
		for _, p := range prepared {
			a, err := k.files.Store(c.Request.Context(), parentID, p)
			if err != nil {
				h.discard(c.Request.Context(), k, stored)
				respondError(c, h.log, err)
				return
			}
			stored = append(stored, *a)
		}
		c.JSON(http.StatusCreated, MapAttachmentsToResponse(stored))
	}
}

// discard removes attachments stored earlier in a request that failed part way.
func (h *AttachmentHandler) discard(ctx context.Context, k attachmentKind, stored []domain.Attachment) {
	ctx = context.WithoutCancel(ctx)
	for i := range stored {
		if err := k.files.Delete(ctx, &stored[i]); err != nil {
			h.log.Error("Removing partially uploaded attachment failed", zap.String("id", stored[i].ID), zap.Error(err))
		}
	}
}

// ListFor godoc
// @Summary List attachments of a parent
// @Tags Attachments
// @Produce json
// @Security BearerAuth
// @Param content_type query string false "Content type substring"
// @Param search query string false "Filename substring"
// @Success 200 {array} AttachmentResponse
// @Router /campaigns/{id}/attachments [get]
func (h *AttachmentHandler) ListFor(kind domain.ParentKind) gin.HandlerFunc {
	k := h.kinds[kind]
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		parentID := c.Param("id")
		if err := k.owns(ctx, userID, parentID); err != nil {
			respondError(c, h.log, err)
			return
		}

		list, err := k.files.List(ctx, parentID, domain.AttachmentFilter{
			ContentType: c.Query("content_type"),
			Search:      c.Query("search"),
		})
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		// Rows uploaded before a URL could be derived get one now; failures stay null.
		k.files.FillURLs(ctx, list)
		c.JSON(http.StatusOK, MapAttachmentsToResponse(list))
	}
}

// --- Attachment routes: /attachments/:kind/:id ---

// lookup resolves the kind and attachment and enforces ownership when
// ownerID is set. It writes the error response itself.
func (h *AttachmentHandler) lookup(c *gin.Context, ownerID string) (attachmentKind, *domain.Attachment, bool) {
	kind, valid := domain.ParseParentKind(c.Param("kind"))
	if !valid {
		abortWithError(c, http.StatusNotFound, "Unknown attachment kind")
		return attachmentKind{}, nil, false
	}
	k := h.kinds[kind]

	a, err := k.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return attachmentKind{}, nil, false
	}
	if ownerID != "" {
		if err := k.owns(c.Request.Context(), ownerID, a.ParentID); err != nil {
			respondError(c, h.log, err)
			return attachmentKind{}, nil, false
		}
	}
	return k, a, true
}

// Get godoc
// @Summary Get attachment metadata
// @Tags Attachments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AttachmentResponse
// @Failure 404 {object} gin.H "Not found"
// @Router /attachments/{kind}/{id} [get]
func (h *AttachmentHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	_, a, ok := h.lookup(c, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, MapAttachmentToResponse(a))
}

// URL godoc
// @Summary Resolve the download URL of an attachment
// @Tags Attachments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} URLResponse
// @Failure 502 {object} gin.H "URL could not be resolved"
// @Router /attachments/{kind}/{id}/url [get]
func (h *AttachmentHandler) URL(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	k, a, ok := h.lookup(c, userID)
	if !ok {
		return
	}
	u, err := k.files.ResolveURL(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, URLResponse{URL: u})
}

// Delete godoc
// @Summary Delete an attachment
// @Tags Attachments
// @Security BearerAuth
// @Success 204
// @Router /attachments/{kind}/{id} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	k, a, ok := h.lookup(c, userID)
	if !ok {
		return
	}
	if err := k.files.Delete(c.Request.Context(), a); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Download godoc
// @Summary Download attachment bytes
// @Description Public route; attachment IDs are random UUIDs.
// @Tags Attachments
// @Produce octet-stream
// @Success 200
// @Router /attachments/{kind}/{id}/download [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	k, a, ok := h.lookup(c, "")
	if !ok {
		return
	}
	rc, err := k.files.Open(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": a.OriginalFilename})
	c.DataFromReader(http.StatusOK, a.SizeBytes, a.ContentType, rc, map[string]string{
		"Content-Disposition":    disposition,
		"X-Content-Type-Options": "nosniff",
	})
}

// --- multipart helpers ---

func uploadedFiles(form *multipart.Form) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for _, field := range []string{"file", "files", "files[]"} {
		out = append(out, form.File[field]...)
	}
	return out
}

// openFiles opens every part; the returned func closes whatever was opened.
func openFiles(headers []*multipart.FileHeader) ([]service.FileSource, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	sources := make([]service.FileSource, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, f)
		sources = append(sources, service.FileSource{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Reader:      f,
		})
	}
	return sources, closeAll, nil
}
