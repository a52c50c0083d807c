package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/chatsync"
	"github.com/vovakirdan/marketchat/internal/proto"
)

const streamBuffer = 64

// StreamError is an error frame sent by the server before it closes a stream.
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error %s: %s", e.Code, e.Message)
}

// Subscribe opens the session's WebSocket stream. The server replays stored messages
// before live ones.
func (c *Client) Subscribe(ctx context.Context, sessionID int64) (chatsync.Subscription, error) {
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if c.token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.Dial(ctx, c.streamURL(sessionID), opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: session %d", chatsync.ErrNotFound, sessionID)
		}
		if resp != nil {
			return nil, fmt.Errorf("dial stream: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	log := c.log.With().Int64("session_id", sessionID).Logger()
	s := &subscription{
		conn:     conn,
		cancel:   cancel,
		messages: make(chan chatsync.Message, streamBuffer),
		done:     make(chan struct{}),
		log:      &log,
	}
	go s.read(runCtx)
	return s, nil
}

func (c *Client) streamURL(sessionID int64) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String() + sessionPath(sessionID) + "/stream"
}

type subscription struct {
	conn     *websocket.Conn
	cancel   context.CancelFunc
	messages chan chatsync.Message
	done     chan struct{}
	log      *zerolog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	err       error
}

func (s *subscription) Messages() <-chan chatsync.Message {
	return s.messages
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.err = nil
		s.mu.Unlock()

		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "bye")
		<-s.done
	})
	return nil
}

func (s *subscription) read(ctx context.Context) {
	defer close(s.done)
	defer close(s.messages)

	for {
		var frame proto.RawOutbound
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			s.finish(err)
			return
		}

		switch frame.Type {
		case proto.OutboundTypeError:
			streamErr := &StreamError{Code: "unknown"}
			if frame.Error != nil {
				streamErr.Code, streamErr.Message = frame.Error.Code, frame.Error.Msg
			}
			s.finish(streamErr)
			return
		case proto.OutboundTypeEvent:
			if frame.Event != proto.EventMessage {
				continue
			}
			var rec proto.MessageRecord
			if err := json.Unmarshal(frame.Data, &rec); err != nil {
				s.log.Warn().Err(err).Msg("skipping undecodable message frame")
				continue
			}
			m, err := toMessage(rec)
			if err != nil {
				s.log.Warn().Err(err).Msg("skipping malformed message")
				continue
			}
			select {
			case s.messages <- m:
			case <-ctx.Done():
				s.finish(ctx.Err())
				return
			}
		}
	}
}

// finish records why the stream ended. Nothing is recorded after Close.
func (s *subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
}
