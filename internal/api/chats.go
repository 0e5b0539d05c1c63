package api

import (
	"net/http"
	"strconv"
	"time"

	"whatsapp-bridge/internal/ingest"
	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"
	"whatsapp-bridge/internal/session"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ChatHandler struct {
	DB       *gorm.DB
	Manager  *session.Manager
	Pipeline *ingest.Pipeline
}

func NewChatHandler(db *gorm.DB, manager *session.Manager, pipeline *ingest.Pipeline) *ChatHandler {
	return &ChatHandler{DB: db, Manager: manager, Pipeline: pipeline}
}

// ListChats returns the session's contacts ordered by recent activity.
func (h *ChatHandler) ListChats(c *gin.Context) {
	var contacts []models.Contact
	q := h.DB.Where("session_id = ?", c.Param("id"))
	if c.Query("archived") != "true" {
		q = q.Where("archived = ?", false)
	}
	if err := q.Order("pinned desc").
		Order("last_message_at desc").
		Find(&contacts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, contacts)
}

// ListMessages returns a page of a chat's messages, newest first.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var messages []models.Message
	if err := h.DB.
		Where("session_id = ? AND chat_key = ?", c.Param("id"), c.Query("chat")).
		Order("timestamp desc").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

type modifyChatRequest struct {
	Chat     string `json:"chat" binding:"required"`
	Archive  *bool  `json:"archive"`
	Pin      *bool  `json:"pin"`
	Mute     *bool  `json:"mute"`
	MarkRead *bool  `json:"mark_read"`
}

// ModifyChat updates local chat flags and mirrors the change to the network
// when the session is connected.
func (h *ChatHandler) ModifyChat(c *gin.Context) {
	sessionID := c.Param("id")

	var req modifyChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if req.Archive != nil {
		updates["archived"] = *req.Archive
	}
	if req.Pin != nil {
		updates["pinned"] = *req.Pin
	}
	if req.Mute != nil {
		updates["muted"] = *req.Mute
	}
	if len(updates) > 0 {
		if err := h.DB.Model(&models.Contact{}).
			Where("session_id = ? AND external_id = ?", sessionID, req.Chat).
			Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if req.MarkRead != nil && *req.MarkRead {
		if err := h.Pipeline.MarkChatRead(sessionID, req.Chat); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	// Network-side mirror is best-effort.
	if conn, err := h.Manager.Conn(sessionID); err == nil {
		mod := protocol.ChatModification{
			Archive:  req.Archive,
			Pin:      req.Pin,
			Mute:     req.Mute,
			MarkRead: req.MarkRead,
		}
		_ = conn.ChatModify(c.Request.Context(), protocol.ParseJID(req.Chat), mod)
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// ListStatuses returns unexpired status-broadcast posts seen by the session.
func (h *ChatHandler) ListStatuses(c *gin.Context) {
	var statuses []models.StatusUpdate
	if err := h.DB.
		Where("session_id = ? AND expires_at > ?", c.Param("id"), time.Now()).
		Order("timestamp desc").
		Find(&statuses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, statuses)
}
