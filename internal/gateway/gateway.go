package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/auth"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/model"
)

const defaultTimeout = 10 * time.Second

// Error is a non-2xx gateway response after base-URL fallback is
// exhausted (or a non-retryable status from the first base that
// produced one).
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// retryableStatus lists responses worth retrying against an alternate
// base URL. 404 is included because primary and legacy deployments
// route the messaging paths differently.
var retryableStatus = map[int]struct{}{
	http.StatusNotFound:            {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// Config configures a gateway client.
type Config struct {
	// BaseURLs are tried in order; the first is the primary deployment.
	BaseURLs []string
	// Token is called once per request.
	Token auth.TokenSource
	// Timeout bounds each individual HTTP request. Zero means 10s.
	Timeout time.Duration
}

// Client is the REST Message Gateway shim: the system of record for
// conversations and messages, and the fallback transport when the
// realtime channel is down.
type Client struct {
	http     *resty.Client
	baseURLs []string
	token    auth.TokenSource
	logger   *zap.Logger
}

// New creates a gateway client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		http:     rc,
		baseURLs: cfg.BaseURLs,
		token:    cfg.Token,
		logger:   logger,
	}
}

// ListConversations returns the caller's conversations, newest
// activity first.
func (c *Client) ListConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	var out struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	err := c.do(ctx, http.MethodGet, "/messages/conversations",
		map[string]string{"limit": strconv.Itoa(limit)}, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// ListMessages returns up to limit messages for a conversation,
// newest first; pass before > 0 to page further back. Callers reverse
// the slice for chronological display.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int, before int64) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if before > 0 {
		query["before"] = strconv.FormatInt(before, 10)
	}
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/messages/"+conversationID, query, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage posts a message and returns the server copy, identifier
// included.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (*model.Message, error) {
	var msg model.Message
	err := c.do(ctx, http.MethodPost, "/messages", nil,
		map[string]string{"conversationId": conversationID, "text": text}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead marks every message in the conversation as read and
// returns the updated conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := c.do(ctx, http.MethodPut, "/messages/conversations/"+conversationID+"/read", nil, nil, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation opens a thread with another user, optionally
// linked to a job. A 409 means the thread already exists; the server
// includes its id in the conflict body, which is treated as success.
func (c *Client) CreateConversation(ctx context.Context, otherUserID, jobID string) (*model.Conversation, error) {
	body := map[string]string{"otherUserId": otherUserID}
	if jobID != "" {
		body["jobId"] = jobID
	}
	var conv model.Conversation
	err := c.do(ctx, http.MethodPost, "/messages/conversations", nil, body, &conv)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			if jerr := json.Unmarshal([]byte(apiErr.Body), &conv); jerr == nil && conv.ID != "" {
				return &conv, nil
			}
		}
		return nil, err
	}
	return &conv, nil
}

// do runs one logical call against the base URLs in order, moving to
// the next base on connection errors and retryable statuses.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	if c.token == nil {
		return auth.ErrUnauthenticated
	}
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("fetch token: %w", err)
	}

	var lastErr error
	for _, base := range c.baseURLs {
		req := c.http.R().
			SetContext(ctx).
			SetAuthToken(token)
		if query != nil {
			req.SetQueryParams(query)
		}
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out)
		}

		resp, err := req.Execute(method, base+path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("gateway request failed", zap.String("base", base), zap.String("path", path), zap.Error(err))
			lastErr = fmt.Errorf("%s %s: %w", method, path, err)
			continue
		}
		if resp.IsSuccess() {
			return nil
		}
		apiErr := &Error{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
		if _, ok := retryableStatus[resp.StatusCode()]; ok {
			c.logger.Warn("gateway returned retryable status, trying next base",
				zap.String("base", base), zap.String("path", path), zap.Int("status", resp.StatusCode()))
			lastErr = apiErr
			continue
		}
		return apiErr
	}
	return lastErr
}
