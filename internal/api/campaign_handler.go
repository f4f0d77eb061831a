package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/credential"
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/service"
)

type CampaignHandler struct {
	campaigns service.CampaignService
	log       *zap.Logger
}

func NewCampaignHandler(campaigns service.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, log: log}
}

// --- DTOs ---

// MailboxFields is shared by campaign and submission requests. Form tags
// serve multipart create requests.
type MailboxFields struct {
	Provider string `json:"provider" form:"provider"`
	IMAPHost string `json:"imapHost" form:"imap_host"`
	IMAPPort int    `json:"imapPort" form:"imap_port" binding:"omitempty,min=1,max=65535"`
	SMTPHost string `json:"smtpHost" form:"smtp_host"`
	SMTPPort int    `json:"smtpPort" form:"smtp_port" binding:"omitempty,min=1,max=65535"`
	UseSSL   *bool  `json:"useSsl" form:"use_ssl"`
}

func (m MailboxFields) toDomain() domain.Mailbox {
	useSSL := true
	if m.UseSSL != nil {
		useSSL = *m.UseSSL
	}
	return domain.Mailbox{
		Provider: m.Provider,
		IMAPHost: m.IMAPHost,
		IMAPPort: m.IMAPPort,
		SMTPHost: m.SMTPHost,
		SMTPPort: m.SMTPPort,
		UseSSL:   useSSL,
	}
}

type CampaignRequest struct {
	Name     string `json:"name" form:"name" binding:"required"`
	Subject  string `json:"subject" form:"subject"`
	Body     string `json:"body" form:"body"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password"`
	Notes    string `json:"notes" form:"notes"`
	MailboxFields
}

func (r CampaignRequest) toInput() service.CampaignInput {
	return service.CampaignInput{
		Name:     r.Name,
		Subject:  r.Subject,
		Body:     r.Body,
		Email:    r.Email,
		Password: r.Password,
		Mailbox:  r.MailboxFields.toDomain(),
		Notes:    r.Notes,
	}
}

type CampaignResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Subject     string               `json:"subject"`
	Body        string               `json:"body"`
	Email       string               `json:"email"`
	PasswordSet bool                 `json:"passwordSet"`
	Mailbox     domain.Mailbox       `json:"mailbox"`
	Notes       string               `json:"notes,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
}

// PasswordResponse carries an explicitly requested credential. Available is
// false when the stored value cannot be decrypted with the current key.
type PasswordResponse struct {
	Password  string `json:"password"`
	Available bool   `json:"available"`
}

func MapCampaignToResponse(c *domain.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:          c.ID,
		Name:        c.Name,
		Subject:     c.Subject,
		Body:        c.Body,
		Email:       c.Email,
		PasswordSet: c.Password != "",
		Mailbox:     c.Mailbox,
		Notes:       c.Notes,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// --- Handlers ---

// Create godoc
// @Summary Create a campaign
// @Description Accepts JSON, or multipart/form-data with optional "files[]" attachments.
// An invalid file rejects the whole request before the campaign is created.
// @Tags Campaigns
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Success 201 {object} CampaignResponse
// @Failure 400 {object} gin.H "Validation error"
// @Failure 413 {object} gin.H "File too large"
// @Failure 415 {object} gin.H "File type not allowed"
// @Router /campaigns [post]
func (h *CampaignHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CampaignRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	files, closeAll, ok := filesFromRequest(c)
	if !ok {
		return
	}
	defer closeAll()

	campaign, attachments, err := h.campaigns.Create(c.Request.Context(), userID, req.toInput(), files)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	resp := MapCampaignToResponse(campaign)
	resp.Attachments = MapAttachmentsToResponse(attachments)
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary List my campaigns
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Success 200 {array} CampaignResponse
// @Router /campaigns [get]
func (h *CampaignHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	list, err := h.campaigns.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	out := make([]CampaignResponse, 0, len(list))
	for i := range list {
		out = append(out, MapCampaignToResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *CampaignHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	campaign, err := h.campaigns.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, MapCampaignToResponse(campaign))
}

// Update godoc
// @Summary Replace a campaign's fields
// @Description An empty password keeps the stored credential.
// @Tags Campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} CampaignResponse
// @Router /campaigns/{id} [put]
func (h *CampaignHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req CampaignRequest
	if !bindJSON(c, &req) {
		return
	}
	campaign, err := h.campaigns.Update(c.Request.Context(), userID, c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, MapCampaignToResponse(campaign))
}

// Delete godoc
// @Summary Delete a campaign and its attachments
// @Tags Campaigns
// @Security BearerAuth
// @Success 204
// @Router /campaigns/{id} [delete]
func (h *CampaignHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if err := h.campaigns.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Password godoc
// @Summary Reveal the stored mailbox password
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Success 200 {object} PasswordResponse
// @Router /campaigns/{id}/password [get]
func (h *CampaignHandler) Password(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	plain, err := h.campaigns.RevealPassword(c.Request.Context(), userID, c.Param("id"))
	respondPassword(c, h.log, plain, err)
}

func respondPassword(c *gin.Context, log *zap.Logger, plain string, err error) {
	if errors.Is(err, service.ErrDecryptionUnavailable) {
		c.JSON(http.StatusOK, PasswordResponse{Password: credential.Unavailable, Available: false})
		return
	}
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, PasswordResponse{Password: plain, Available: true})
}

// filesFromRequest opens the files of a multipart create request. JSON
// requests have none.
func filesFromRequest(c *gin.Context) ([]service.FileSource, func(), bool) {
	if !strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm) {
		return nil, func() {}, true
	}
	form, err := c.MultipartForm()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Malformed multipart body")
		return nil, nil, false
	}
	files, closeAll, err := openFiles(uploadedFiles(form))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Could not read uploaded file")
		return nil, nil, false
	}
	return files, closeAll, true
}
