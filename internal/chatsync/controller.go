// Package chatsync keeps a live, ordered and duplicate-free view of one chat session.
//
// A Controller resolves the session and its counterpart, subscribes to the session's
// message stream and merges every delivered message into a local sequence sorted by
// timestamp. Historical and live deliveries share the same ingestion path, so the
// merge is idempotent and independent of arrival order.
package chatsync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Controller.
type State int

const (
	// StateInitializing is the state before Start completes.
	StateInitializing State = iota
	// StateLive accepts deliveries and sends.
	StateLive
	// StateDisconnected means the subscription dropped. Reconnect returns to StateLive.
	StateDisconnected
	// StateClosed is entered by Close.
	StateClosed
	// StateFailed is entered when Start cannot resolve the session. Terminal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateLive:
		return "live"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for non-fatal conditions.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.log = logger
		}
	}
}

// Controller synchronizes the messages of one session for one local user.
type Controller struct {
	sessionID   int64
	localUserID string
	caps        Capabilities
	log         *zerolog.Logger

	mu          sync.Mutex
	state       State
	session     *Session
	counterpart *Profile
	profileErr  error
	streamErr   error
	messages    []Message
	seen        map[int64]struct{}
	sub         Subscription
	runCtx      context.Context
	cancel      context.CancelFunc
	updates     chan struct{}
	wg          sync.WaitGroup
}

// New creates a controller in StateInitializing. Call Start to go live.
func New(sessionID int64, localUserID string, caps Capabilities, opts ...Option) *Controller {
	nop := zerolog.Nop()
	c := &Controller{
		sessionID:   sessionID,
		localUserID: localUserID,
		caps:        caps,
		log:         &nop,
		state:       StateInitializing,
		seen:        make(map[int64]struct{}),
		updates:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start resolves the session and counterpart and opens the live subscription.
//
// A session resolution or subscription failure moves the controller to StateFailed and
// is returned. A counterpart profile failure is recorded (see Counterpart) and Start
// still succeeds. The subscription outlives ctx; it ends with Close.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInitializing {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.mu.Unlock()

	session, err := c.caps.Sessions.GetSession(ctx, c.sessionID)
	if err != nil {
		return c.fail(fmt.Errorf("%w: %w", ErrSessionResolution, err))
	}
	counterpartID, ok := session.Counterpart(c.localUserID)
	if !ok {
		return c.fail(fmt.Errorf("%w: user %s is not a participant of session %d",
			ErrSessionResolution, c.localUserID, c.sessionID))
	}

	var profileErr error
	profile, err := c.caps.Profiles.GetProfile(ctx, counterpartID)
	if err != nil {
		profile = nil
		profileErr = fmt.Errorf("%w: %w", ErrProfileResolution, err)
		c.log.Warn().Err(err).Int64("session_id", c.sessionID).Str("user_id", counterpartID).
			Msg("counterpart profile unavailable")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := c.caps.Stream.Subscribe(runCtx, c.sessionID)
	if err != nil {
		cancel()
		return c.fail(fmt.Errorf("%w: %w", ErrSubscription, err))
	}

	c.mu.Lock()
	if c.state != StateInitializing {
		// Closed while resolving.
		c.mu.Unlock()
		cancel()
		_ = sub.Close()
		return ErrNotActive
	}
	c.session = session
	c.counterpart = profile
	c.profileErr = profileErr
	c.runCtx, c.cancel = runCtx, cancel
	c.goLive(sub)
	c.mu.Unlock()

	c.log.Debug().Int64("session_id", c.sessionID).Str("user_id", c.localUserID).Msg("chat session live")
	return nil
}

// Reconnect re-opens a dropped subscription and replays history into the local sequence.
// Only valid in StateDisconnected.
func (c *Controller) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrNotActive
	}
	runCtx := c.runCtx
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	sub, err := c.caps.Stream.Subscribe(runCtx, c.sessionID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubscription, err)
		c.mu.Lock()
		if c.state == StateDisconnected {
			c.streamErr = err
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		_ = sub.Close()
		return ErrNotActive
	}
	c.goLive(sub)
	c.mu.Unlock()

	c.log.Info().Int64("session_id", c.sessionID).Msg("chat subscription re-established")
	return nil
}

// Send appends text to the session. Surrounding whitespace is trimmed and blank input is
// a no-op. The message is not inserted locally; it appears when the subscription
// delivers it back.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	live := c.state == StateLive
	c.mu.Unlock()
	if !live {
		return ErrNotActive
	}

	if _, err := c.caps.Stream.Append(ctx, c.sessionID, c.localUserID, text); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Close cancels the subscription and moves the controller to StateClosed.
// It is safe to call more than once and concurrently with deliveries.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	sub, cancel := c.sub, c.cancel
	c.sub = nil
	close(c.updates)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	c.wg.Wait()
	return err
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a snapshot of the local sequence.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Session returns the resolved session, or nil before Start succeeds.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Counterpart returns the other participant's profile. When it could not be resolved the
// profile is nil and the error wraps ErrProfileResolution.
func (c *Controller) Counterpart() (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counterpart == nil {
		return nil, c.profileErr
	}
	p := *c.counterpart
	return &p, c.profileErr
}

// Err returns the last stream error, if any. It wraps ErrSubscription.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamErr
}

// Updates signals changes to the sequence or state. Signals are coalesced.
// The channel is closed when the controller is closed or fails.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// goLive must be called with mu held.
func (c *Controller) goLive(sub Subscription) {
	c.state = StateLive
	c.sub = sub
	c.streamErr = nil
	c.wg.Add(2)
	go c.deliver(sub)
	go c.fetchHistory(c.runCtx, sub)
	c.notify()
}

func (c *Controller) deliver(sub Subscription) {
	defer c.wg.Done()

	for m := range sub.Messages() {
		c.ingest(m)
	}

	c.mu.Lock()
	if c.sub != sub || c.state != StateLive {
		c.mu.Unlock()
		return
	}
	cause := sub.Err()
	if cause == nil {
		cause = errors.New("stream ended")
	}
	c.streamErr = fmt.Errorf("%w: %w", ErrSubscription, cause)
	c.state = StateDisconnected
	c.sub = nil
	c.notify()
	c.mu.Unlock()

	c.log.Warn().Err(cause).Int64("session_id", c.sessionID).Msg("chat subscription dropped")
	_ = sub.Close()
}

func (c *Controller) fetchHistory(ctx context.Context, sub Subscription) {
	defer c.wg.Done()

	history, err := c.caps.Stream.FetchHistory(ctx, c.sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Int64("session_id", c.sessionID).Msg("fetch history")
		c.mu.Lock()
		if c.sub == sub && c.state == StateLive {
			c.streamErr = fmt.Errorf("%w: fetch history: %w", ErrSubscription, err)
			c.notify()
		}
		c.mu.Unlock()
		return
	}

	for _, m := range history {
		c.ingest(m)
	}
}

// ingest merges one delivered message. It reports whether the sequence changed.
func (c *Controller) ingest(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateLive {
		return false
	}
	if m.SessionID != c.sessionID {
		c.log.Warn().Int64("session_id", c.sessionID).Int64("message_session_id", m.SessionID).
			Int64("message_id", m.ID).Msg("dropping message for another session")
		return false
	}
	if _, dup := c.seen[m.ID]; dup {
		return false
	}

	c.seen[m.ID] = struct{}{}
	c.messages = append(c.messages, m)
	slices.SortFunc(c.messages, compareMessages)
	c.notify()
	return true
}

// fail must be called without mu held.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	if c.state == StateInitializing {
		c.state = StateFailed
		close(c.updates)
	}
	c.mu.Unlock()

	c.log.Error().Err(err).Int64("session_id", c.sessionID).Msg("chat session failed")
	return err
}

// notify must be called with mu held and the updates channel open.
func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// compareMessages orders by timestamp, then by id so equal timestamps sort deterministically.
func compareMessages(a, b Message) int {
	if n := a.Timestamp.Compare(b.Timestamp); n != 0 {
		return n
	}
	return cmp.Compare(a.ID, b.ID)
}
