package api

import (
	"errors"
	"io"
	"net/http"

	"whatsapp-bridge/internal/outbound"
	"whatsapp-bridge/internal/protocol"
	"whatsapp-bridge/internal/session"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	Outbound *outbound.Service
}

func NewMessageHandler(svc *outbound.Service) *MessageHandler {
	return &MessageHandler{Outbound: svc}
}

type sendTextRequest struct {
	To             string `json:"to" binding:"required"`
	Text           string `json:"text" binding:"required"`
	QuotedID       string `json:"quoted_id"`
	SimulateTyping bool   `json:"simulate_typing"`
}

// SendText sends a plain text message.
func (h *MessageHandler) SendText(c *gin.Context) {
	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.Outbound.SendText(c.Request.Context(), c.Param("id"), req.To, req.Text, &outbound.Options{
		QuotedID:       req.QuotedID,
		SimulateTyping: req.SimulateTyping,
	})
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// SendMedia sends an uploaded file as image/video/audio/document.
func (h *MessageHandler) SendMedia(c *gin.Context) {
	to := c.PostForm("to")
	if to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient required"})
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	mimeType := header.Header.Get("Content-Type")
	caption := c.PostForm("caption")
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	var sent any
	switch c.PostForm("kind") {
	case "image":
		sent, err = h.Outbound.SendImage(ctx, sessionID, to, data, mimeType, caption, nil)
	case "video":
		sent, err = h.Outbound.SendVideo(ctx, sessionID, to, data, mimeType, caption, nil)
	case "audio":
		sent, err = h.Outbound.SendAudio(ctx, sessionID, to, data, mimeType, nil)
	case "document":
		sent, err = h.Outbound.SendDocument(ctx, sessionID, to, data, mimeType, header.Filename, nil)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be image, video, audio or document"})
		return
	}
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, sent)
}

type sendLocationRequest struct {
	To        string  `json:"to" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

// SendLocation shares a geographic point.
func (h *MessageHandler) SendLocation(c *gin.Context) {
	var req sendLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.Outbound.SendLocation(c.Request.Context(), c.Param("id"), req.To, &protocol.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Name:      req.Name,
		Address:   req.Address,
	}, nil)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type sendContactRequest struct {
	To          string `json:"to" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Phone       string `json:"phone" binding:"required"`
}

// SendContact shares a contact card.
func (h *MessageHandler) SendContact(c *gin.Context) {
	var req sendContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.Outbound.SendContact(c.Request.Context(), c.Param("id"), req.To, &protocol.ContactCard{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	}, nil)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type sendReactionRequest struct {
	To       string `json:"to" binding:"required"`
	TargetID string `json:"target_id" binding:"required"`
	Emoji    string `json:"emoji"`
}

// SendReaction reacts to a prior message. An empty emoji removes the reaction.
func (h *MessageHandler) SendReaction(c *gin.Context) {
	var req sendReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.Outbound.SendReaction(c.Request.Context(), c.Param("id"), req.To, req.TargetID, req.Emoji, nil)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type sendButtonsRequest struct {
	To      string                  `json:"to" binding:"required"`
	Payload protocol.ButtonsPayload `json:"payload" binding:"required"`
}

// SendButtons sends an interactive button message.
func (h *MessageHandler) SendButtons(c *gin.Context) {
	var req sendButtonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.Outbound.SendButtons(c.Request.Context(), c.Param("id"), req.To, &req.Payload, nil)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type sendListRequest struct {
	To      string               `json:"to" binding:"required"`
	Payload protocol.ListPayload `json:"payload" binding:"required"`
}

// SendList sends an interactive list message.
func (h *MessageHandler) SendList(c *gin.Context) {
	var req sendListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.Outbound.SendList(c.Request.Context(), c.Param("id"), req.To, &req.Payload, nil)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type sendProductRequest struct {
	To      string                  `json:"to" binding:"required"`
	Payload protocol.ProductPayload `json:"payload" binding:"required"`
}

// SendProduct sends a catalog product message.
func (h *MessageHandler) SendProduct(c *gin.Context) {
	var req sendProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.Outbound.SendProduct(c.Request.Context(), c.Param("id"), req.To, &req.Payload, nil)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusConflict, gin.H{"error": "session not connected"})
	case errors.Is(err, outbound.ErrInvalidRecipient):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
