package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/chat"
	"messenger-service/internal/directory"
	"messenger-service/internal/models"
	"messenger-service/internal/store"
)

// ChatsHandler serves the REST side of the chat core: the chat-list
// bootstrap the client loads before its socket connects.
type ChatsHandler struct {
	router *chat.Router
	users  directory.UserDirectory
}

// NewChatsHandler builds a ChatsHandler.
func NewChatsHandler(router *chat.Router, users directory.UserDirectory) *ChatsHandler {
	return &ChatsHandler{router: router, users: users}
}

type chatListEntry struct {
	models.ChatSummary
	Name          string `json:"name,omitempty"`
	ProfilePicURL string `json:"profilePicUrl,omitempty"`
}

// ListChats returns the authenticated user's chat list, most recently
// active first, decorated with counterpart display info.
func (h *ChatsHandler) ListChats(c *gin.Context) {
	userID := c.GetString("userID")

	summaries, err := h.router.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	entries := make([]chatListEntry, 0, len(summaries))
	for _, summary := range summaries {
		entry := chatListEntry{ChatSummary: summary}
		// Display info is cosmetic; a directory outage must not break the
		// chat list.
		if profile, err := h.users.GetProfile(c.Request.Context(), summary.MessagesWith); err == nil {
			entry.Name = profile.Name
			entry.ProfilePicURL = profile.ProfilePicURL
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, entries)
}

type markReadRequest struct {
	MessagesWith string `json:"messagesWith" binding:"required"`
}

// MarkRead clears the unread flag on one chat entry. The client calls this
// when it opens the conversation.
func (h *ChatsHandler) MarkRead(c *gin.Context) {
	userID := c.GetString("userID")

	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messagesWith is required"})
		return
	}

	if err := h.router.MarkRead(c.Request.Context(), userID, req.MessagesWith); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark chat read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DeleteChat removes the whole conversation with one counterpart, history and
// chat-list entries for both sides.
func (h *ChatsHandler) DeleteChat(c *gin.Context) {
	userID := c.GetString("userID")
	counterpartID := c.Param("messagesWith")

	err := h.router.DeleteConversation(c.Request.Context(), userID, counterpartID)
	if errors.Is(err, store.ErrNoHistory) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such chat"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
