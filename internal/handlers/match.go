package handlers

import (
	"net/http"

	"brewnet-server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type MatchHandler struct {
	swipes    *services.SwipeService
	discovery *services.DiscoveryService
	log       logrus.FieldLogger
}

type SwipeRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	Action   string `json:"action" binding:"required,oneof=like pass"`
}

func NewMatchHandler(swipes *services.SwipeService, discovery *services.DiscoveryService, log logrus.FieldLogger) *MatchHandler {
	return &MatchHandler{swipes: swipes, discovery: discovery, log: log}
}

func (h *MatchHandler) Swipe(c *gin.Context) {
	var req SwipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.swipes.Swipe(c.Request.Context(), currentUser(c), req.TargetID, req.Action)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *MatchHandler) GetLikes(c *gin.Context) {
	ids, err := h.swipes.Likes(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"likes": ids})
}

func (h *MatchHandler) GetRecommendations(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}

	cards, err := h.discovery.Recommend(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards})
}
