package handlers

import (
	"net/http"

	"brewnet-server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type MessageHandler struct {
	chats *services.ChatService
	log   logrus.FieldLogger
}

type CreateChatRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func NewMessageHandler(chats *services.ChatService, log logrus.FieldLogger) *MessageHandler {
	return &MessageHandler{chats: chats, log: log}
}

// CreateChat returns the caller's chat with user_id, creating it on first use.
func (h *MessageHandler) CreateChat(c *gin.Context) {
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chat, err := h.chats.GetOrCreateChat(c.Request.Context(), currentUser(c), req.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

func (h *MessageHandler) GetConversations(c *gin.Context) {
	rows, err := h.chats.ListChats(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": rows})
}

func (h *MessageHandler) GetConversation(c *gin.Context) {
	info, err := h.chats.ChatUserInfo(c.Request.Context(), c.Param("chat_id"), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": info})
}

func (h *MessageHandler) GetMessages(c *gin.Context) {
	msgs, err := h.chats.ListMessages(c.Request.Context(), c.Param("chat_id"), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.chats.SendMessage(c.Request.Context(), c.Param("chat_id"), currentUser(c), req.Content)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	n, err := h.chats.MarkRead(c.Request.Context(), c.Param("chat_id"), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": n})
}
