package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/service"
)

type SubmissionHandler struct {
	submissions service.SubmissionService
	log         *zap.Logger
}

func NewSubmissionHandler(submissions service.SubmissionService, log *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, log: log}
}

type SubmissionRequest struct {
	Name        string `json:"name" form:"name" binding:"required"`
	Email       string `json:"email" form:"email" binding:"required,email"`
	Password    string `json:"password" form:"password"`
	IsProcessed bool   `json:"isProcessed" form:"is_processed"`
	Notes       string `json:"notes" form:"notes"`
	MailboxFields
}

func (r SubmissionRequest) toInput() service.SubmissionInput {
	return service.SubmissionInput{
		Name:        r.Name,
		Email:       r.Email,
		Password:    r.Password,
		Mailbox:     r.MailboxFields.toDomain(),
		IsProcessed: r.IsProcessed,
		Notes:       r.Notes,
	}
}

type SubmissionResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Email       string               `json:"email"`
	PasswordSet bool                 `json:"passwordSet"`
	Mailbox     domain.Mailbox       `json:"mailbox"`
	IsProcessed bool                 `json:"isProcessed"`
	Notes       string               `json:"notes,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
}

func MapSubmissionToResponse(s *domain.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:          s.ID,
		Name:        s.Name,
		Email:       s.Email,
		PasswordSet: s.Password != "",
		Mailbox:     s.Mailbox,
		IsProcessed: s.IsProcessed,
		Notes:       s.Notes,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Create godoc
// @Summary Record an inbound mailbox submission
// @Description JSON or multipart/form-data with optional "files[]".
// @Tags Submissions
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Success 201 {object} SubmissionResponse
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req SubmissionRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	files, closeAll, ok := filesFromRequest(c)
	if !ok {
		return
	}
	defer closeAll()

	sub, attachments, err := h.submissions.Create(c.Request.Context(), userID, req.toInput(), files)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	resp := MapSubmissionToResponse(sub)
	resp.Attachments = MapAttachmentsToResponse(attachments)
	c.JSON(http.StatusCreated, resp)
}

func (h *SubmissionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	list, err := h.submissions.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	out := make([]SubmissionResponse, 0, len(list))
	for i := range list {
		out = append(out, MapSubmissionToResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *SubmissionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sub, err := h.submissions.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, MapSubmissionToResponse(sub))
}

func (h *SubmissionHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req SubmissionRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := h.submissions.Update(c.Request.Context(), userID, c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, MapSubmissionToResponse(sub))
}

func (h *SubmissionHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if err := h.submissions.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SubmissionHandler) Password(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	plain, err := h.submissions.RevealPassword(c.Request.Context(), userID, c.Param("id"))
	respondPassword(c, h.log, plain, err)
}
