package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/proto"
	"github.com/vovakirdan/marketchat/internal/service/chat"
)

const streamWriteTimeout = 10 * time.Second

// StreamHandler serves the live message stream of a chat session over WebSocket.
//
// The subscriber is registered with the hub before history is read, so every message
// appended after registration reaches the connection either as history or as a live
// event. A message may arrive twice across that seam; clients merge by message ID.
type StreamHandler struct {
	hub    *core.Hub
	chat   *chat.Service
	buffer int
	log    *zerolog.Logger
}

// NewStreamHandler builds a new stream handler. buffer is the per-connection event queue size.
func NewStreamHandler(hub *core.Hub, chatSvc *chat.Service, buffer int, logger *zerolog.Logger) *StreamHandler {
	if buffer <= 0 {
		buffer = 64
	}
	return &StreamHandler{hub: hub, chat: chatSvc, buffer: buffer, log: logger}
}

// Stream upgrades the request and streams the session.
// GET /api/chats/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	// Resolve access before the upgrade so failures are plain HTTP errors.
	if _, err := h.chat.GetSession(c.Request.Context(), uid, sessionID); err != nil {
		switch {
		case errors.Is(err, chat.ErrSessionNotFound):
			writeError(c, http.StatusNotFound, core.ErrCodeSessionNotFound, "session not found")
		case errors.Is(err, chat.ErrNotParticipant):
			writeError(c, http.StatusForbidden, core.ErrCodeNotParticipant, "not a participant in this session")
		default:
			h.log.Error().Err(err).Int64("session_id", sessionID).Msg("failed to resolve stream session")
			internalError(c)
		}
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// Nothing is read from clients; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(c.Request.Context())

	sub := core.NewSubscriber(uuid.NewString(), uid, sessionID, h.buffer)
	if err := h.hub.Register(ctx, sub); err != nil {
		h.log.Warn().Err(err).Int64("session_id", sessionID).Msg("stream register failed")
		conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	defer h.hub.Unregister(sub)

	log := h.log.With().Str("subscriber_id", sub.ID).Str("user_id", uid).Int64("session_id", sessionID).Logger()
	log.Debug().Msg("stream opened")

	status, reason := h.stream(ctx, conn, sub, &log)
	log.Debug().Int("status", int(status)).Str("reason", reason).Msg("stream closed")
	conn.Close(status, reason)
}

func (h *StreamHandler) stream(ctx context.Context, conn *websocket.Conn, sub *core.Subscriber, log *zerolog.Logger) (websocket.StatusCode, string) {
	history, err := h.chat.Replay(ctx, sub.Session)
	if err != nil {
		if ctx.Err() != nil {
			return websocket.StatusNormalClosure, "closing"
		}
		log.Error().Err(err).Msg("failed to read stream history")
		_ = h.write(ctx, conn, proto.ErrorFrame(core.ErrCodeInternal, "failed to read history"))
		return websocket.StatusInternalError, "history unavailable"
	}
	for _, m := range history {
		if err := h.write(ctx, conn, proto.MessageFrame(messageRecord(m))); err != nil {
			return writeFailure(err, log)
		}
	}

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				if sub.Evicted() {
					log.Warn().Msg("stream evicted as slow consumer")
					_ = h.write(ctx, conn, proto.ErrorFrame(core.ErrCodeSlowConsumer, "stream fell behind"))
					return websocket.StatusTryAgainLater, "slow consumer"
				}
				return websocket.StatusGoingAway, "server shutting down"
			}
			if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
				return writeFailure(err, log)
			}
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "closing"
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, frame proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}

func writeFailure(err error, log *zerolog.Logger) (websocket.StatusCode, string) {
	if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
		return s, "closing"
	}
	if errors.Is(err, context.Canceled) {
		return websocket.StatusNormalClosure, "closing"
	}
	log.Warn().Err(err).Msg("ws write failed")
	return websocket.StatusInternalError, "write failed"
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessage:
		return proto.MessageFrame(messageRecordFromCore(event.Message))
	case core.EventError:
		if event.Error != nil {
			return proto.ErrorFrame(event.Error.Code, event.Error.Message)
		}
	}
	return proto.ErrorFrame(core.ErrCodeInternal, "unknown event")
}
