package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"campusmarket/internal/app/dto"
	chatservice "campusmarket/internal/app/services/chat"
	domainchat "campusmarket/internal/domain/chat"
)

// ChatHTTP exposes the conversation endpoints.
type ChatHTTP interface {
	ListMyConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	CreateListingConversation(c *gin.Context)
	MarkSeen(c *gin.Context)
	Block(c *gin.Context)
	Delete(c *gin.Context)
	Report(c *gin.Context)
	UnreadTotal(c *gin.Context)
	ListReports(c *gin.Context)
}

// ChatHandler bridges HTTP with the messaging coordinator.
type ChatHandler struct {
	Chat   *chatservice.Service
	Logger *slog.Logger
}

// ListMyConversations returns the caller's conversation window, most recently
// active first.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversations, err := h.Chat.Conversations(c.Request.Context(), principal.Profile.ID)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", principal.Profile.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapConversations(conversations, principal.Profile.ID))
}

// ListMessages returns the newest window of a thread in send order.
func (h ChatHandler) ListMessages(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	messages, err := h.Chat.Messages(c.Request.Context(), conversationID, principal.Profile.ID)
	if err != nil {
		h.respondChatError(c, err, "list messages", "conversation_id", conversationID, "user_id", principal.Profile.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapMessages(messages))
}

// CreateListingConversation opens (or reuses) the thread for the caller and a
// listing's seller, appending the initial message.
func (h ChatHandler) CreateListingConversation(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	listingID := c.Param("id")
	if listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	conv, msg, err := h.Chat.OpenListingConversation(c.Request.Context(), chatservice.OpenParams{
		ListingID: listingID,
		BuyerID:   principal.Profile.ID,
		Buyer:     principal.Profile,
		Text:      req.Text,
	})
	if err != nil {
		h.respondChatError(c, err, "open conversation", "listing_id", listingID, "user_id", principal.Profile.ID)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"conversation": dto.MapConversation(conv, principal.Profile.ID),
		"message":      dto.MapMessage(msg),
	})
}

// SendMessage appends one message to an existing conversation.
func (h ChatHandler) SendMessage(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, _, err := h.Chat.SendMessage(c.Request.Context(), chatservice.SendParams{
		ConversationID: conversationID,
		SenderID:       principal.Profile.ID,
		SenderName:     principal.Profile.Name,
		SenderAvatar:   principal.Profile.AvatarURL,
		Text:           req.Text,
	})
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", conversationID, "user_id", principal.Profile.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapMessage(msg))
}

// MarkSeen resets the caller's unread counter for a thread. Idempotent.
func (h ChatHandler) MarkSeen(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	if err := h.Chat.MarkSeen(c.Request.Context(), conversationID, principal.Profile.ID); err != nil {
		h.respondChatError(c, err, "mark seen", "conversation_id", conversationID, "user_id", principal.Profile.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// Block rejects further sends from the counterparty. One-way.
func (h ChatHandler) Block(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	if err := h.Chat.Block(c.Request.Context(), conversationID, principal.Profile.ID); err != nil {
		h.respondChatError(c, err, "block", "conversation_id", conversationID, "user_id", principal.Profile.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete hides the thread for the caller; mutual deletion removes it.
func (h ChatHandler) Delete(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	removed, err := h.Chat.Delete(c.Request.Context(), conversationID, principal.Profile.ID)
	if err != nil {
		h.respondChatError(c, err, "delete conversation", "conversation_id", conversationID, "user_id", principal.Profile.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Report files a moderation record against the counterparty.
func (h ChatHandler) Report(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req struct {
		ReportedID  string `json:"reported_id"`
		Reason      string `json:"reason"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	report, err := h.Chat.Report(c.Request.Context(), chatservice.ReportParams{
		ConversationID: conversationID,
		ReporterID:     principal.Profile.ID,
		ReportedID:     req.ReportedID,
		Reason:         req.Reason,
		Description:    req.Description,
	})
	if err != nil {
		h.respondChatError(c, err, "report", "conversation_id", conversationID, "user_id", principal.Profile.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapReport(report))
}

// UnreadTotal returns the caller's badge count across visible threads.
func (h ChatHandler) UnreadTotal(c *gin.Context) {
	principal, ok := requireRole(c, "")
	if !ok {
		return
	}
	total, err := h.Chat.UnreadTotal(c.Request.Context(), principal.Profile.ID)
	if err != nil {
		h.respondChatError(c, err, "unread total", "user_id", principal.Profile.ID)
		return
	}
	c.JSON(http.StatusOK, dto.UnreadTotal{Total: total})
}

// ListReports returns filed moderation records, newest first. Moderators only.
func (h ChatHandler) ListReports(c *gin.Context) {
	_, ok := requireRole(c, "moderator")
	if !ok {
		return
	}
	limit := parsePositiveInt(c.Query("limit"), 50)
	reports, err := h.Chat.ModerationReports(c.Request.Context(), limit)
	if err != nil {
		h.respondChatError(c, err, "list reports")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": dto.MapReports(reports)})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, op string, attrs ...any) {
	switch {
	case errors.Is(err, domainchat.ErrNotFound), errors.Is(err, chatservice.ErrListingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domainchat.ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation is blocked"})
	case errors.Is(err, domainchat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
	case errors.Is(err, domainchat.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
	case errors.Is(err, domainchat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text is required"})
	case errors.Is(err, domainchat.ErrInvalidReason):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report reason"})
	case errors.Is(err, domainchat.ErrSelfReport):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot report yourself"})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat "+op+" failed", append([]any{"error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parsePositiveInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
