package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/proto"
	"github.com/vovakirdan/marketchat/internal/service/chat"
	"github.com/vovakirdan/marketchat/internal/store"
)

// ChatHandlers provides HTTP handlers for chat sessions and messages.
type ChatHandlers struct {
	service *chat.Service
	log     *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *chat.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		service: svc,
		log:     logger,
	}
}

// CreateSession resolves or creates the caller's session about a listing.
// POST /api/chats
func (h *ChatHandlers) CreateSession(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	var req proto.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create chat request")
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	session, err := h.service.FindOrCreateSession(c.Request.Context(), uid, req.ListingID, req.SellerID)
	if err != nil {
		h.chatError(c, err, uid, 0)
		return
	}

	h.log.Debug().Int64("session_id", session.ID).Str("buyer_id", uid).Msg("chat session resolved")
	c.JSON(http.StatusOK, sessionRecord(session))
}

// ListSessions lists the caller's sessions.
// GET /api/chats
func (h *ChatHandlers) ListSessions(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), uid)
	if err != nil {
		h.chatError(c, err, uid, 0)
		return
	}

	response := make([]proto.SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		response = append(response, sessionRecord(s))
	}
	c.JSON(http.StatusOK, response)
}

// GetSession returns one session.
// GET /api/chats/:id
func (h *ChatHandlers) GetSession(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), uid, sessionID)
	if err != nil {
		h.chatError(c, err, uid, sessionID)
		return
	}
	c.JSON(http.StatusOK, sessionRecord(session))
}

// ListMessages returns a page of messages in chronological order.
// GET /api/chats/:id/messages?limit=N&before=ID
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid before id")
			return
		}
		beforeID = &v
	}

	messages, err := h.service.History(c.Request.Context(), uid, sessionID, limit, beforeID)
	if err != nil {
		h.chatError(c, err, uid, sessionID)
		return
	}
	c.JSON(http.StatusOK, messageRecords(messages))
}

// SendMessage appends a message from the caller.
// POST /api/chats/:id/messages
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req proto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.SenderID != "" && req.SenderID != uid {
		writeError(c, http.StatusForbidden, core.ErrCodeForbidden, "sender_id does not match the authenticated user")
		return
	}

	msg, err := h.service.Append(c.Request.Context(), uid, sessionID, req.Text)
	if err != nil {
		h.chatError(c, err, uid, sessionID)
		return
	}

	h.log.Debug().Int64("session_id", sessionID).Int64("message_id", msg.ID).Str("sender_id", uid).Msg("message appended")
	c.JSON(http.StatusCreated, messageRecord(msg))
}

func (h *ChatHandlers) chatError(c *gin.Context, err error, uid string, sessionID int64) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		writeError(c, http.StatusNotFound, core.ErrCodeSessionNotFound, "session not found")
	case errors.Is(err, chat.ErrListingNotFound):
		writeError(c, http.StatusNotFound, core.ErrCodeListingNotFound, "listing not found")
	case errors.Is(err, chat.ErrNotParticipant):
		writeError(c, http.StatusForbidden, core.ErrCodeNotParticipant, "not a participant in this session")
	case errors.Is(err, chat.ErrSellerMismatch), errors.Is(err, chat.ErrCannotChatSelf),
		errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("user_id", uid).Int64("session_id", sessionID).Msg("chat request failed")
		internalError(c)
	}
}

func sessionIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid session id")
		return 0, false
	}
	return id, true
}

func messageRecords(messages []*store.ChatMessage) []proto.MessageRecord {
	out := make([]proto.MessageRecord, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageRecord(m))
	}
	return out
}
