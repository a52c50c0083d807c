// Package client implements the chatsync capabilities against the marketchat HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/chatsync"
	"github.com/vovakirdan/marketchat/internal/proto"
)

const (
	defaultTimeout  = 15 * time.Second
	historyPageSize = 200
)

// APIError is a non-2xx response other than 404.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error %s (status %d): %s", e.Code, e.Status, e.Message)
}

// ErrMalformedRecord is returned when the server sends a record missing required fields.
var ErrMalformedRecord = errors.New("malformed record")

// Client talks to one server on behalf of one authenticated user.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *zerolog.Logger
}

var (
	_ chatsync.SessionDirectory = (*Client)(nil)
	_ chatsync.ProfileStore     = (*Client)(nil)
	_ chatsync.MessageStream    = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// New creates a client for baseURL (e.g. http://localhost:8080) using token as bearer.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}

	nop := zerolog.Nop()
	c := &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: defaultTimeout},
		log:   &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login exchanges credentials for a bearer token.
func Login(ctx context.Context, baseURL, email, password string, opts ...Option) (string, error) {
	c, err := New(baseURL, "", opts...)
	if err != nil {
		return "", err
	}
	var resp proto.TokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// SignUp registers a new account and returns its bearer token.
func SignUp(ctx context.Context, baseURL, name, email, password string, opts ...Option) (string, error) {
	c, err := New(baseURL, "", opts...)
	if err != nil {
		return "", err
	}
	var resp proto.TokenResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*chatsync.Profile, error) {
	var rec proto.ProfileRecord
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &rec); err != nil {
		return nil, err
	}
	return toProfile(rec)
}

// GetSession fetches a session the caller participates in.
func (c *Client) GetSession(ctx context.Context, sessionID int64) (*chatsync.Session, error) {
	var rec proto.SessionRecord
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID), nil, &rec); err != nil {
		return nil, err
	}
	return toSession(rec)
}

// FindOrCreateSession resolves the caller's session for a listing. The server takes the buyer
// from the token, so buyerID must be the authenticated user.
func (c *Client) FindOrCreateSession(ctx context.Context, listingID int64, buyerID, sellerID string) (*chatsync.Session, error) {
	var rec proto.SessionRecord
	req := proto.CreateChatRequest{ListingID: listingID, SellerID: sellerID}
	if err := c.do(ctx, http.MethodPost, "/api/chats", req, &rec); err != nil {
		return nil, err
	}
	session, err := toSession(rec)
	if err != nil {
		return nil, err
	}
	if session.BuyerID != buyerID {
		return nil, fmt.Errorf("session %d belongs to buyer %s, not %s", session.ID, session.BuyerID, buyerID)
	}
	return session, nil
}

// GetProfile fetches the public profile of a user.
func (c *Client) GetProfile(ctx context.Context, userID string) (*chatsync.Profile, error) {
	var rec proto.ProfileRecord
	if err := c.do(ctx, http.MethodGet, "/api/profiles/"+url.PathEscape(userID), nil, &rec); err != nil {
		return nil, err
	}
	return toProfile(rec)
}

// FetchHistory pages backwards through the session until every message is read.
func (c *Client) FetchHistory(ctx context.Context, sessionID int64) ([]chatsync.Message, error) {
	var all []chatsync.Message
	var before int64
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(historyPageSize))
		if before > 0 {
			q.Set("before", strconv.FormatInt(before, 10))
		}

		var page []proto.MessageRecord
		if err := c.do(ctx, http.MethodGet, sessionPath(sessionID)+"/messages?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		for _, rec := range page {
			m, err := toMessage(rec)
			if err != nil {
				return nil, err
			}
			all = append(all, m)
		}
		oldest := page[0].ID
		for _, rec := range page[1:] {
			oldest = min(oldest, rec.ID)
		}
		if before > 0 && oldest >= before {
			return nil, fmt.Errorf("history paging did not advance past message %d", before)
		}
		before = oldest
	}
}

// Append sends a message as senderID, who must be the authenticated user.
func (c *Client) Append(ctx context.Context, sessionID int64, senderID, text string) (*chatsync.Message, error) {
	var rec proto.MessageRecord
	req := proto.SendMessageRequest{SenderID: senderID, Text: text}
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID)+"/messages", req, &rec); err != nil {
		return nil, err
	}
	m, err := toMessage(rec)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func sessionPath(sessionID int64) string {
	return "/api/chats/" + strconv.FormatInt(sessionID, 10)
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body proto.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	if resp.StatusCode == http.StatusNotFound {
		if body.Error == "" {
			body.Error = "resource not found"
		}
		return fmt.Errorf("%w: %s", chatsync.ErrNotFound, body.Error)
	}
	return &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
}
