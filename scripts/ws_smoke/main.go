package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vovakirdan/marketchat/internal/client"
	"github.com/vovakirdan/marketchat/internal/log"
)

// Sends one message on a session and waits for it to come back on the stream.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	token := flag.String("token", "", "bearer token of a session participant")
	sessionID := flag.Int64("session", 0, "chat session id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	logger := log.NewWithWriter(os.Stderr, "info")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := smoke(ctx, *addr, *token, *sessionID, *text); err != nil {
		logger.Fatal().Err(err).Msg("smoke test failed")
	}
}

func smoke(ctx context.Context, addr, token string, sessionID int64, text string) error {
	if token == "" || sessionID == 0 {
		return errors.New("-token and -session are required")
	}

	c, err := client.New(addr, token)
	if err != nil {
		return err
	}
	me, err := c.Me(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	sub, err := c.Subscribe(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	started := time.Now()
	sent, err := c.Append(ctx, sessionID, me.ID, text)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	replayed := 0
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("message %d not echoed: %w", sent.ID, ctx.Err())
		case m, ok := <-sub.Messages():
			if !ok {
				return fmt.Errorf("stream closed: %w", sub.Err())
			}
			if m.ID != sent.ID {
				replayed++
				continue
			}
			fmt.Printf("message %d echoed after %s (%d other messages replayed)\n",
				m.ID, time.Since(started).Round(time.Millisecond), replayed)
			fmt.Printf("session=%d sender=%s text=%q ts=%s\n",
				m.SessionID, m.SenderID, m.Text, m.Timestamp.Format(time.RFC3339Nano))
			return nil
		}
	}
}
