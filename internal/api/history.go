package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/echogate/internal/middleware"
	"github.com/lalith-99/echogate/internal/models"
	"github.com/lalith-99/echogate/internal/repository"
	"go.uber.org/zap"
)

// HistoryHandler serves channel message history over plain HTTP. It goes
// through the same enriched read path the gateway broadcasts from, so a
// history fetch and a live broadcast are byte-for-byte the same shape.
type HistoryHandler struct {
	messages    repository.MessageRepository
	memberships repository.MembershipRepository
	logger      *zap.Logger
}

func NewHistoryHandler(
	messages repository.MessageRepository,
	memberships repository.MembershipRepository,
	logger *zap.Logger,
) *HistoryHandler {
	return &HistoryHandler{
		messages:    messages,
		memberships: memberships,
		logger:      logger,
	}
}

// List handles GET /v1/channels/:id/messages?before=123&limit=50
//
// Cursor-based pagination:
//   - "before" = message ID. "Give me messages older than this." 0 = start from latest.
//   - "limit"  = how many to return. Default 50, capped at 100.
func (h *HistoryHandler) List(c *gin.Context) {
	ident := middleware.GetIdentity(c)
	if ident == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel ID"})
		return
	}

	// Same rule as every channel-scoped gateway operation: membership is
	// checked against the store, never asserted by the client.
	membership, err := h.memberships.Find(c.Request.Context(), channelID, ident.UserID)
	if err != nil {
		h.logger.Error("failed to check membership", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	if membership == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this channel"})
		return
	}

	var before int64
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		if limit > 100 {
			limit = 100
		}
	}

	messages, err := h.messages.ListEnrichedByChannel(c.Request.Context(), channelID, before, limit)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	// Soft-deleted rows stay in history for thread continuity, but their
	// content never leaves this process.
	out := make([]models.EnrichedMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ForClient())
	}

	c.JSON(http.StatusOK, out)
}
