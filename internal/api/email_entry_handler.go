package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/service"
)

type EmailEntryHandler struct {
	entries service.EmailEntryService
	log     *zap.Logger
}

func NewEmailEntryHandler(entries service.EmailEntryService, log *zap.Logger) *EmailEntryHandler {
	return &EmailEntryHandler{entries: entries, log: log}
}

type EmailEntryRequest struct {
	Name        string  `json:"name" binding:"required"`
	Email       string  `json:"email" binding:"required,email"`
	ClientEmail string  `json:"clientEmail" binding:"omitempty,email"`
	CampaignID  *string `json:"campaignId"`
	Unsubscribe bool    `json:"unsubscribe"`
}

func (r EmailEntryRequest) toInput() service.EmailEntryInput {
	return service.EmailEntryInput{
		Name:        r.Name,
		Email:       r.Email,
		ClientEmail: r.ClientEmail,
		CampaignID:  r.CampaignID,
		Unsubscribe: r.Unsubscribe,
	}
}

type EmailEntryResponse struct {
	ID          string    `json:"id"`
	CampaignID  *string   `json:"campaignId"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	ClientEmail string    `json:"clientEmail,omitempty"`
	SignupDate  string    `json:"signupDate"`
	DayOne      *string   `json:"dayOne"`
	DayTwo      *string   `json:"dayTwo"`
	DayFour     *string   `json:"dayFour"`
	DayFive     *string   `json:"dayFive"`
	DaySeven    *string   `json:"daySeven"`
	DayNine     *string   `json:"dayNine"`
	Unsubscribe bool      `json:"unsubscribe"`
	CreatedAt   time.Time `json:"createdAt"`
}

type BulkEmailEntryResponse struct {
	Created         int                  `json:"created"`
	Duplicates      int                  `json:"duplicates"`
	DuplicateEmails []string             `json:"duplicateEmails"`
	TotalProcessed  int                  `json:"totalProcessed"`
	Status          string               `json:"status"`
	Entries         []EmailEntryResponse `json:"entries"`
}

func MapEmailEntryToResponse(e *domain.EmailEntry) EmailEntryResponse {
	return EmailEntryResponse{
		ID:          e.ID,
		CampaignID:  e.CampaignID,
		Name:        e.Name,
		Email:       e.Email,
		ClientEmail: e.ClientEmail,
		SignupDate:  e.SignupDate.Format(time.DateOnly),
		DayOne:      e.DayOne,
		DayTwo:      e.DayTwo,
		DayFour:     e.DayFour,
		DayFive:     e.DayFive,
		DaySeven:    e.DaySeven,
		DayNine:     e.DayNine,
		Unsubscribe: e.Unsubscribe,
		CreatedAt:   e.CreatedAt,
	}
}

func mapEmailEntries(list []domain.EmailEntry) []EmailEntryResponse {
	out := make([]EmailEntryResponse, 0, len(list))
	for i := range list {
		out = append(out, MapEmailEntryToResponse(&list[i]))
	}
	return out
}

// campaignQuery returns the campaign_id query parameter, or nil when absent.
func campaignQuery(c *gin.Context) *string {
	if id := c.Query("campaign_id"); id != "" {
		return &id
	}
	return nil
}

// Create godoc
// @Summary Add one or many email entries
// @Description A JSON object creates one entry; a JSON array creates many, skipping emails that already exist.
// @Tags EmailEntries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param campaign_id query string false "Campaign applied to every entry"
// @Success 201 {object} EmailEntryResponse
// @Success 207 {object} BulkEmailEntryResponse "Some emails already existed"
// @Failure 409 {object} gin.H "Email already exists"
// @Router /email-entries [post]
func (h *EmailEntryHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Could not read request body")
		return
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		h.createBulk(c, userID, body)
		return
	}

	var req EmailEntryRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	in := req.toInput()
	if q := campaignQuery(c); q != nil {
		in.CampaignID = q
	}

	e, err := h.entries.Create(c.Request.Context(), userID, in)
	if errors.Is(err, service.ErrDuplicateEntry) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":  "Email already exists",
			"email":  domain.NormalizeEmail(req.Email),
			"status": "duplicate",
		})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, MapEmailEntryToResponse(e))
}

func (h *EmailEntryHandler) createBulk(c *gin.Context, userID string, body []byte) {
	var reqs []EmailEntryRequest
	if err := binding.JSON.BindBody(body, &reqs); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	in := make([]service.EmailEntryInput, len(reqs))
	for i, r := range reqs {
		in[i] = r.toInput()
	}

	res, err := h.entries.CreateBulk(c.Request.Context(), userID, campaignQuery(c), in)
	var repeated *service.DuplicateEmailsError
	if errors.As(err, &repeated) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":           "Duplicate emails in request",
			"duplicateEmails": repeated.Emails,
		})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	resp := BulkEmailEntryResponse{
		Created:         len(res.Created),
		Duplicates:      len(res.Duplicates),
		DuplicateEmails: res.Duplicates,
		TotalProcessed:  res.Total,
		Status:          "success",
		Entries:         mapEmailEntries(res.Created),
	}
	code := http.StatusCreated
	if len(res.Duplicates) > 0 {
		resp.Status = "partial_success"
		code = http.StatusMultiStatus
		c.Header("X-Duplicates", strconv.Itoa(len(res.Duplicates)))
	}
	c.JSON(code, resp)
}

// List godoc
// @Summary List email entries, oldest signup first
// @Tags EmailEntries
// @Produce json
// @Security BearerAuth
// @Param campaign_id query string false "Only entries of this campaign"
// @Success 200 {array} EmailEntryResponse
// @Router /email-entries [get]
func (h *EmailEntryHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	list, err := h.entries.List(c.Request.Context(), userID, domain.EmailEntryFilter{CampaignID: c.Query("campaign_id")})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, mapEmailEntries(list))
}

func (h *EmailEntryHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	e, err := h.entries.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, MapEmailEntryToResponse(e))
}

func (h *EmailEntryHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req EmailEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.entries.Update(c.Request.Context(), userID, c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, MapEmailEntryToResponse(e))
}

func (h *EmailEntryHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if err := h.entries.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
