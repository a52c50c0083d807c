// Package redis relays chat messages between server instances over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/marketchat/internal/core"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// payload is the JSON form of core.Message on the channel.
type payload struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Fanout implements core.Fanout on a single Redis channel.
type Fanout struct {
	client  *goredis.Client
	channel string
	log     *zerolog.Logger
}

var _ core.Fanout = (*Fanout)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger *zerolog.Logger) (*Fanout, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Fanout{client: client, channel: cfg.Channel, log: logger}, nil
}

// Publish sends msg to every subscribed instance.
func (f *Fanout) Publish(ctx context.Context, msg core.Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe calls deliver for every message on the channel until ctx is done.
func (f *Fanout) Subscribe(ctx context.Context, deliver func(core.Message)) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so publishes after this point are seen.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription %s closed", f.channel)
			}
			msg, err := decode(m.Payload)
			if err != nil {
				f.log.Warn().Err(err).Str("channel", f.channel).Msg("dropping malformed fanout payload")
				continue
			}
			deliver(msg)
		}
	}
}

// Close closes the Redis client.
func (f *Fanout) Close() error {
	return f.client.Close()
}

func encode(msg core.Message) ([]byte, error) {
	data, err := json.Marshal(payload{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return data, nil
}

func decode(raw string) (core.Message, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return core.Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if p.ID == 0 || p.SessionID == 0 {
		return core.Message{}, fmt.Errorf("message without id or session")
	}
	return core.Message{
		ID:        p.ID,
		SessionID: p.SessionID,
		SenderID:  p.SenderID,
		Text:      p.Text,
		CreatedAt: p.CreatedAt,
	}, nil
}
