package api

import (
	"errors"
	"net/http"
	"strconv"

	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/notify"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	DB      *gorm.DB
	Service *notify.Service
}

func NewNotificationHandler(db *gorm.DB, svc *notify.Service) *NotificationHandler {
	return &NotificationHandler{DB: db, Service: svc}
}

// Send delivers a notification. Business failures come back as a structured
// result with HTTP 200; only malformed requests are 4xx.
func (h *NotificationHandler) Send(c *gin.Context) {
	var req notify.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.TenantID = tenantID(c)
	c.JSON(http.StatusOK, h.Service.SendNotification(c.Request.Context(), &req))
}

type testNotificationRequest struct {
	RecipientPhone string `json:"recipient_phone" binding:"required"`
	EventType      string `json:"event_type" binding:"required"`
}

// Test sends a notification with placeholder variables, for verifying
// templates and session wiring.
func (h *NotificationHandler) Test(c *gin.Context) {
	var req testNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result := h.Service.SendNotification(c.Request.Context(), &notify.Request{
		TenantID:       tenantID(c),
		RecipientPhone: req.RecipientPhone,
		Category:       "test",
		EventType:      req.EventType,
		Variables:      map[string]string{"test": "true"},
	})
	c.JSON(http.StatusOK, result)
}

// GetSettings returns the tenant's notification settings.
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	settings := models.TenantSettings{TenantID: tenantID(c), NotificationsEnabled: true}
	err := h.DB.Where("tenant_id = ?", settings.TenantID).First(&settings).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings upserts the tenant's notification settings.
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	var settings models.TenantSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings.TenantID = tenantID(c)
	if err := h.DB.Save(&settings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// ListTemplates returns the tenant's templates plus system defaults.
func (h *NotificationHandler) ListTemplates(c *gin.Context) {
	var templates []models.NotificationTemplate
	if err := h.DB.Where("tenant_id IN ?", []string{tenantID(c), ""}).
		Order("event_type").
		Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, templates)
}

type templateRequest struct {
	EventType   string `json:"event_type" binding:"required"`
	Category    string `json:"category"`
	Body        string `json:"body" binding:"required"`
	Interactive string `json:"interactive"`
	Active      *bool  `json:"active"`
}

// CreateTemplate adds a tenant template.
func (h *NotificationHandler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tpl := models.NotificationTemplate{
		TenantID:    tenantID(c),
		EventType:   req.EventType,
		Category:    req.Category,
		Body:        req.Body,
		Interactive: req.Interactive,
		Active:      true,
	}
	if req.Active != nil {
		tpl.Active = *req.Active
	}
	if err := h.DB.Create(&tpl).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// UpdateTemplate modifies a tenant template.
func (h *NotificationHandler) UpdateTemplate(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("templateId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{
		"event_type":  req.EventType,
		"category":    req.Category,
		"body":        req.Body,
		"interactive": req.Interactive,
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	res := h.DB.Model(&models.NotificationTemplate{}).
		Where("id = ? AND tenant_id = ?", id, tenantID(c)).
		Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// DeleteTemplate removes a tenant template. System defaults cannot be deleted
// through this endpoint.
func (h *NotificationHandler) DeleteTemplate(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("templateId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}
	res := h.DB.Where("id = ? AND tenant_id = ?", id, tenantID(c)).
		Delete(&models.NotificationTemplate{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Logs returns recent delivery outcomes for the tenant.
func (h *NotificationHandler) Logs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var logs []models.NotificationLog
	q := h.DB.Where("tenant_id = ?", tenantID(c))
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at desc").Limit(limit).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// Stats returns aggregate delivery counts for the tenant.
func (h *NotificationHandler) Stats(c *gin.Context) {
	stats, err := h.Service.TenantStats(tenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
