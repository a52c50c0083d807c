package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/chatsync"
	"github.com/vovakirdan/marketchat/internal/client"
	"github.com/vovakirdan/marketchat/internal/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ws_chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	sessionID := flag.Int64("session", 0, "chat session to open")
	listingID := flag.Int64("listing", 0, "listing to ask about when -session is not set")
	sellerID := flag.String("seller", "", "seller of -listing")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger := log.NewWithWriter(os.Stderr, *level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := client.Login(ctx, *addr, *email, *password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c, err := client.New(*addr, token, client.WithLogger(logger))
	if err != nil {
		return err
	}
	me, err := c.Me(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	if *sessionID == 0 {
		if *listingID == 0 || *sellerID == "" {
			return errors.New("either -session or both -listing and -seller are required")
		}
		session, err := c.FindOrCreateSession(ctx, *listingID, me.ID, *sellerID)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		*sessionID = session.ID
	}

	ctrl := chatsync.New(*sessionID, me.ID, chatsync.Capabilities{Sessions: c, Profiles: c, Stream: c},
		chatsync.WithLogger(logger))
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Close()

	names := map[string]string{me.ID: "you"}
	title := "chat"
	if session := ctrl.Session(); session != nil {
		title = session.ListingName
	}
	if p, err := ctrl.Counterpart(); p != nil {
		names[p.ID] = p.Name
	} else if err != nil {
		logger.Warn().Err(err).Msg("counterpart unknown")
	}

	fmt.Printf("Session %d about %q as %s\n", *sessionID, title, me.Name)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go render(ctx, ctrl, names, logger)
	writeLoop(ctx, ctrl, logger)
	return nil
}

// render prints each message once, in sequence order, and reconnects dropped streams.
func render(ctx context.Context, ctrl *chatsync.Controller, names map[string]string, logger *zerolog.Logger) {
	printed := map[int64]bool{}
	var reconnecting atomic.Bool
	for range ctrl.Updates() {
		for _, m := range ctrl.Messages() {
			if printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			who := names[m.SenderID]
			if who == "" {
				who = m.SenderID
			}
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), who, m.Text)
		}

		if ctrl.State() == chatsync.StateDisconnected && reconnecting.CompareAndSwap(false, true) {
			fmt.Fprintf(os.Stderr, "disconnected: %v\n", ctrl.Err())
			go func() {
				defer reconnecting.Store(false)
				reconnect(ctx, ctrl, logger)
			}()
		}
	}
}

func reconnect(ctx context.Context, ctrl *chatsync.Controller, logger *zerolog.Logger) {
	backoff := time.Second
	for ctrl.State() == chatsync.StateDisconnected {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if err := ctrl.Reconnect(ctx); err != nil {
			logger.Warn().Err(err).Dur("backoff", backoff).Msg("reconnect failed")
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		fmt.Fprintln(os.Stderr, "reconnected")
	}
}

func writeLoop(ctx context.Context, ctrl *chatsync.Controller, logger *zerolog.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := ctrl.Send(ctx, line); err != nil {
				logger.Error().Err(err).Msg("send failed")
			}
		}
	}
}
