package api

import (
	"errors"
	"net/http"

	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionHandler struct {
	DB      *gorm.DB
	Manager *session.Manager
}

func NewSessionHandler(db *gorm.DB, manager *session.Manager) *SessionHandler {
	return &SessionHandler{DB: db, Manager: manager}
}

func tenantID(c *gin.Context) string {
	return c.GetHeader("X-Tenant-ID")
}

type createSessionRequest struct {
	Name string `json:"name"`
}

// Create registers a new session and starts connecting it.
func (h *SessionHandler) Create(c *gin.Context) {
	tenant := tenantID(c)
	if tenant == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-ID header required"})
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	if err := h.DB.Create(&models.Session{
		ID:       id,
		TenantID: tenant,
		Name:     req.Name,
		Status:   models.SessionDisconnected,
		AIMode:   models.AIModeOff,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.Manager.Create(c.Request.Context(), id, tenant); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// List returns the tenant's sessions.
func (h *SessionHandler) List(c *gin.Context) {
	var sessions []models.Session
	if err := h.DB.Where("tenant_id = ?", tenantID(c)).Find(&sessions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// Get returns one session.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess)
}

type updateSessionRequest struct {
	Name           *string `json:"name"`
	AIMode         *string `json:"ai_mode" binding:"omitempty,oneof=off auto suggest"`
	WorkHoursStart *string `json:"work_hours_start"`
	WorkHoursEnd   *string `json:"work_hours_end"`
	AwayMessage    *string `json:"away_message"`
}

// Update changes session settings (name, AI mode, working hours).
func (h *SessionHandler) Update(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.AIMode != nil {
		updates["ai_mode"] = *req.AIMode
	}
	if req.WorkHoursStart != nil {
		updates["work_hours_start"] = *req.WorkHoursStart
	}
	if req.WorkHoursEnd != nil {
		updates["work_hours_end"] = *req.WorkHoursEnd
	}
	if req.AwayMessage != nil {
		updates["away_message"] = *req.AwayMessage
	}
	if len(updates) > 0 {
		if err := h.DB.Model(sess).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Delete closes the session and erases it with its credentials.
func (h *SessionHandler) Delete(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.Manager.Delete(c.Request.Context(), sess.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Connect (re)establishes the session's connection.
func (h *SessionHandler) Connect(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.Manager.Create(c.Request.Context(), sess.ID, sess.TenantID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "connecting"})
}

// Disconnect closes the connection without unpairing.
func (h *SessionHandler) Disconnect(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.Manager.Close(c.Request.Context(), sess.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "session not connected"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// QR returns the current pairing code for a session awaiting pairing.
func (h *SessionHandler) QR(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	qr, err := h.Manager.QR(sess.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pairing code available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"qr": qr})
}

// ownedSession loads the path session and enforces tenant ownership.
func (h *SessionHandler) ownedSession(c *gin.Context) (*models.Session, bool) {
	var sess models.Session
	err := h.DB.Where("id = ? AND tenant_id = ?", c.Param("id"), tenantID(c)).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return &sess, true
}
