// Package sync keeps an in-memory view of conversations and messages
// consistent across two channels: realtime push events and REST
// polling. All merges are idempotent so the same fact arriving on
// both channels, in any order, converges to the same state.
package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/bus"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/model"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/realtime"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/store"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/wire"
)

const (
	defaultRealtimeTimeout   = 2500 * time.Millisecond
	defaultTypingExpiry      = 5 * time.Second
	defaultConversationPoll  = 10 * time.Second
	defaultMessagePoll       = 5 * time.Second
	defaultPageLimit         = 50
	previewLimit             = 100
	connectedPollEveryNTicks = 3
)

// Transport is the realtime channel as the controller sees it.
type Transport interface {
	State() realtime.State
	Send(wire.Outbound) bool
	Call(context.Context, wire.Outbound) (*wire.Response, error)
	On(wire.EventType, realtime.Handler) func()
}

// Gateway is the REST channel: system of record and fallback when
// the realtime channel is down.
type Gateway interface {
	ListConversations(ctx context.Context, limit int) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int, before int64) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID, text string) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, otherUserID, jobID string) (*model.Conversation, error)
}

// Options tunes controller behavior; zero values pick defaults.
type Options struct {
	// SelfID is the authenticated user's id, used to tell own messages
	// from the other participant's.
	SelfID string
	// RealtimeTimeout bounds a correlated realtime request before the
	// controller falls back to REST.
	RealtimeTimeout time.Duration
	// TypingExpiry is how long a typing indicator lives without a
	// refresh. Stop events are best-effort on the wire, so indicators
	// expire on their own.
	TypingExpiry time.Duration
	// ConversationPollInterval drives the conversation-list safety
	// poll.
	ConversationPollInterval time.Duration
	// MessagePollInterval drives the open-conversation message poll.
	MessagePollInterval time.Duration
	// PageLimit is the fetch size for list operations.
	PageLimit int
}

func (o *Options) fillDefaults() {
	if o.RealtimeTimeout <= 0 {
		o.RealtimeTimeout = defaultRealtimeTimeout
	}
	if o.TypingExpiry <= 0 {
		o.TypingExpiry = defaultTypingExpiry
	}
	if o.ConversationPollInterval <= 0 {
		o.ConversationPollInterval = defaultConversationPoll
	}
	if o.MessagePollInterval <= 0 {
		o.MessagePollInterval = defaultMessagePoll
	}
	if o.PageLimit <= 0 {
		o.PageLimit = defaultPageLimit
	}
}

// MessagesUpdate is the payload of a KindMessagesUpdated event.
type MessagesUpdate struct {
	ConversationID string
	Messages       []model.Message
}

// SendFailure is the payload of a KindSendFailed event. The
// provisional message stays in the view so the surface can offer a
// retry.
type SendFailure struct {
	ConversationID string
	MessageID      string
	Err            error
}

type typingEntry struct {
	indicator model.TypingIndicator
	timer     *time.Timer
}

// Controller owns the merged conversation state for one identity.
type Controller struct {
	opts      Options
	transport Transport
	gateway   Gateway
	db        *store.DB
	bus       *bus.Bus
	logger    *zap.Logger

	mu            sync.Mutex
	conversations []model.Conversation
	messages      map[string][]model.Message
	typing        map[string]*typingEntry
	open          string

	runCtx context.Context
	cancel context.CancelFunc
	unsubs []func()
	wg     sync.WaitGroup
}

// New creates a controller. db may be nil to run without a local
// cache.
func New(transport Transport, gateway Gateway, db *store.DB, b *bus.Bus, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.fillDefaults()
	return &Controller{
		opts:      opts,
		transport: transport,
		gateway:   gateway,
		db:        db,
		bus:       b,
		logger:    logger,
		messages:  make(map[string][]model.Message),
		typing:    make(map[string]*typingEntry),
	}
}

// Start seeds state from the cache, subscribes to push events, and
// launches the polling loop.
func (c *Controller) Start(ctx context.Context) {
	c.runCtx, c.cancel = context.WithCancel(ctx)

	if c.db != nil {
		if cached, err := c.db.ListConversations(c.opts.PageLimit); err != nil {
			c.logger.Warn("cache seed failed", zap.Error(err))
		} else if len(cached) > 0 {
			c.mu.Lock()
			c.conversations = cached
			c.mu.Unlock()
			c.publishConversations()
		}
	}

	c.unsubs = append(c.unsubs,
		c.transport.On(wire.EventNewMessage, c.onNewMessage),
		c.transport.On(wire.EventTyping, c.onTyping),
		c.transport.On(wire.EventConversationRead, c.onConversationRead),
		c.transport.On(wire.EventStatus, c.onStatus),
	)

	c.wg.Add(1)
	go c.pollLoop(c.runCtx)
}

// Stop tears down subscriptions, timers, and the polling loop.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.wg.Wait()

	c.mu.Lock()
	for key, entry := range c.typing {
		entry.timer.Stop()
		delete(c.typing, key)
	}
	c.mu.Unlock()
}

// Conversations returns a snapshot of the conversation list, newest
// activity first.
func (c *Controller) Conversations() []model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// Messages returns a snapshot of a conversation's messages in
// chronological order.
func (c *Controller) Messages(conversationID string) []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// TypingIndicators returns the live typing indicators for a
// conversation.
func (c *Controller) TypingIndicators(conversationID string) []model.TypingIndicator {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.TypingIndicator
	for _, entry := range c.typing {
		if entry.indicator.ConversationID == conversationID {
			out = append(out, entry.indicator)
		}
	}
	return out
}

// RefreshConversations fetches the conversation list, preferring the
// realtime channel and falling back to REST, and merges it into the
// view.
func (c *Controller) RefreshConversations(ctx context.Context) error {
	convs, err := c.fetchConversations(ctx)
	if err != nil {
		c.publish(bus.KindSyncError, err)
		return err
	}
	c.applyConversations(convs)
	return nil
}

func (c *Controller) fetchConversations(ctx context.Context) ([]model.Conversation, error) {
	if c.transport.State() == realtime.Connected {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.RealtimeTimeout)
		resp, err := c.transport.Call(callCtx, wire.Outbound{Type: wire.GetConversations, Limit: c.opts.PageLimit})
		cancel()
		if err == nil {
			return resp.Conversations, nil
		}
		c.logger.Debug("realtime conversation fetch failed, falling back to REST", zap.Error(err))
	}
	return c.gateway.ListConversations(ctx, c.opts.PageLimit)
}

// applyConversations replaces the list with the server's view. The
// open conversation keeps a zero unread count regardless of what the
// server reports: the user is looking at it, and a lagging or failed
// mark-read must not resurrect the badge.
func (c *Controller) applyConversations(convs []model.Conversation) {
	c.mu.Lock()
	for i := range convs {
		if convs[i].ID == c.open {
			convs[i].UnreadCount = 0
		}
	}
	sortConversations(convs)
	c.conversations = convs
	c.mu.Unlock()

	c.persistConversations(convs)
	c.publishConversations()
}

// OpenConversation marks a conversation as the one on screen, fetches
// and merges its recent messages, and marks it read. The unread count
// drops to zero immediately and stays there even if mark-read fails;
// the next successful sync settles it.
func (c *Controller) OpenConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	c.mu.Lock()
	c.open = conversationID
	c.zeroUnreadLocked(conversationID)
	if len(c.messages[conversationID]) == 0 && c.db != nil {
		if cached, err := c.db.ListMessages(conversationID, 0, c.opts.PageLimit); err == nil && len(cached) > 0 {
			reverse(cached)
			c.messages[conversationID] = cached
		}
	}
	c.mu.Unlock()
	c.publishConversations()

	fetchErr := c.refreshMessages(ctx, conversationID)

	c.markRead(ctx, conversationID)

	return c.Messages(conversationID), fetchErr
}

// CloseConversation clears the on-screen conversation and its typing
// indicators.
func (c *Controller) CloseConversation() {
	c.mu.Lock()
	id := c.open
	c.open = ""
	for key, entry := range c.typing {
		if entry.indicator.ConversationID == id {
			entry.timer.Stop()
			delete(c.typing, key)
		}
	}
	c.mu.Unlock()
}

// markRead pushes a read receipt, preferring realtime and falling
// back to REST. Failure is logged, never surfaced: the local zeroing
// already happened and polling will reconcile eventually.
func (c *Controller) markRead(ctx context.Context, conversationID string) {
	if c.transport.Send(wire.Outbound{Type: wire.MarkRead, ConversationID: conversationID}) {
		return
	}
	if _, err := c.gateway.MarkRead(ctx, conversationID); err != nil {
		c.logger.Warn("mark read failed", zap.String("conversation", conversationID), zap.Error(err))
	}
}

// SendMessage sends text on the best available channel. The message
// appears in the view immediately under a provisional id and is
// reconciled with the server copy once one channel accepts it.
func (c *Controller) SendMessage(ctx context.Context, conversationID, text string) (*model.Message, error) {
	provisional := model.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       c.opts.SelfID,
		Text:           text,
		Timestamp:      time.Now().UnixMilli(),
	}

	c.mu.Lock()
	c.messages[conversationID], _ = mergeMessages(c.messages[conversationID], []model.Message{provisional})
	c.touchConversationLocked(conversationID, text, provisional.Timestamp, false)
	c.mu.Unlock()
	c.publishMessages(conversationID)
	c.publishConversations()

	sent, err := c.deliver(ctx, conversationID, text)
	if err != nil {
		c.publish(bus.KindSendFailed, SendFailure{
			ConversationID: conversationID,
			MessageID:      provisional.ID,
			Err:            err,
		})
		return nil, err
	}

	c.mu.Lock()
	c.messages[conversationID] = replaceMessage(c.messages[conversationID], provisional.ID, *sent)
	c.touchConversationLocked(conversationID, sent.Text, sent.Timestamp, false)
	c.mu.Unlock()
	c.publishMessages(conversationID)

	if c.db != nil {
		if err := c.db.DeleteMessage(conversationID, provisional.ID); err != nil {
			c.logger.Warn("cache delete failed", zap.Error(err))
		}
		c.persistMessage(sent)
	}
	return sent, nil
}

// deliver tries realtime first, then REST. Exactly one channel carries
// the message: the realtime attempt either fails before the server
// accepts it or succeeds, never both.
func (c *Controller) deliver(ctx context.Context, conversationID, text string) (*model.Message, error) {
	if c.transport.State() == realtime.Connected {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.RealtimeTimeout)
		resp, err := c.transport.Call(callCtx, wire.Outbound{
			Type:           wire.SendMessage,
			ConversationID: conversationID,
			Text:           text,
		})
		cancel()
		if err == nil && resp.Message != nil {
			return resp.Message, nil
		}
		if err == nil {
			err = fmt.Errorf("realtime send: response carried no message")
		}
		c.logger.Debug("realtime send failed, falling back to REST", zap.Error(err))
	}
	msg, err := c.gateway.SendMessage(ctx, conversationID, text)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// Typing reports the user's typing state on the push channel only.
// There is no REST fallback: a lost typing signal costs nothing.
func (c *Controller) Typing(conversationID string, typing bool) bool {
	t := wire.TypingStart
	if !typing {
		t = wire.TypingStop
	}
	return c.transport.Send(wire.Outbound{Type: t, ConversationID: conversationID})
}

// CreateConversation opens a thread with another user via REST and
// adds it to the view. An existing thread comes back as-is.
func (c *Controller) CreateConversation(ctx context.Context, otherUserID, jobID string) (*model.Conversation, error) {
	conv, err := c.gateway.CreateConversation(ctx, otherUserID, jobID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	found := false
	for i := range c.conversations {
		if c.conversations[i].ID == conv.ID {
			found = true
			break
		}
	}
	if !found {
		c.conversations = append(c.conversations, *conv)
		sortConversations(c.conversations)
	}
	c.mu.Unlock()

	if c.db != nil {
		if err := c.db.UpsertConversation(conv); err != nil {
			c.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	c.publishConversations()
	return conv, nil
}

func (c *Controller) onNewMessage(evt *wire.Inbound) {
	msg := evt.NewMessage.ToMessage()
	fromOther := msg.SenderID != c.opts.SelfID

	c.mu.Lock()
	c.messages[msg.ConversationID], _ = mergeMessages(c.messages[msg.ConversationID], []model.Message{msg})
	c.touchConversationLocked(msg.ConversationID, msg.Text, msg.Timestamp, fromOther && msg.ConversationID != c.open)
	isOpen := msg.ConversationID == c.open
	c.mu.Unlock()

	if isOpen && fromOther {
		// The user is looking at it: acknowledge right away so the
		// sender's read state keeps up.
		c.transport.Send(wire.Outbound{Type: wire.ReadReceipt, ConversationID: msg.ConversationID, MessageID: msg.ID})
	}

	c.persistMessage(&msg)
	c.publishMessages(msg.ConversationID)
	c.publishConversations()
}

func (c *Controller) onTyping(evt *wire.Inbound) {
	t := evt.Typing

	c.mu.Lock()
	if t.ConversationID != c.open {
		c.mu.Unlock()
		return
	}
	key := t.ConversationID + "|" + t.UserName
	if entry, ok := c.typing[key]; ok {
		entry.timer.Stop()
		delete(c.typing, key)
	}
	if t.IsTyping {
		indicator := model.TypingIndicator{
			ConversationID: t.ConversationID,
			UserName:       t.UserName,
			ExpiresAt:      time.Now().Add(c.opts.TypingExpiry).UnixMilli(),
		}
		c.typing[key] = &typingEntry{
			indicator: indicator,
			timer:     time.AfterFunc(c.opts.TypingExpiry, func() { c.expireTyping(key, t.ConversationID) }),
		}
	}
	c.mu.Unlock()

	c.publishTyping(t.ConversationID)
}

func (c *Controller) expireTyping(key, conversationID string) {
	c.mu.Lock()
	_, ok := c.typing[key]
	if ok {
		delete(c.typing, key)
	}
	c.mu.Unlock()
	if ok {
		c.publishTyping(conversationID)
	}
}

func (c *Controller) onConversationRead(evt *wire.Inbound) {
	r := evt.ConversationRead
	if r.ReadByUserID != c.opts.SelfID {
		return
	}
	// Read on another device/surface: drop the local badge too.
	c.mu.Lock()
	c.zeroUnreadLocked(r.ConversationID)
	c.mu.Unlock()
	c.publish(bus.KindConversationRead, r.ConversationID)
	c.publishConversations()
}

func (c *Controller) onStatus(evt *wire.Inbound) {
	if evt.Status.To != string(realtime.Connected) {
		return
	}
	// Push events missed during the outage are not replayed; a full
	// fetch closes the gap.
	go func() {
		if err := c.RefreshConversations(c.runCtx); err != nil {
			return
		}
		if open := c.openID(); open != "" {
			_ = c.refreshMessages(c.runCtx, open)
		}
	}()
}

func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	convTicker := time.NewTicker(c.opts.ConversationPollInterval)
	defer convTicker.Stop()
	msgTicker := time.NewTicker(c.opts.MessagePollInterval)
	defer msgTicker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-convTicker.C:
			ticks++
			// While connected, push keeps the list fresh; poll only
			// occasionally as a safety net. While disconnected, the
			// poll is the only channel.
			if c.transport.State() == realtime.Connected && ticks%connectedPollEveryNTicks != 0 {
				continue
			}
			if err := c.RefreshConversations(ctx); err != nil {
				c.logger.Debug("conversation poll failed", zap.Error(err))
			}
		case <-msgTicker.C:
			open := c.openID()
			if open == "" {
				continue
			}
			if err := c.refreshMessages(ctx, open); err != nil {
				c.logger.Debug("message poll failed", zap.Error(err))
			}
		}
	}
}

// refreshMessages fetches recent messages for a conversation and
// merges them in. If the user navigated away while the fetch was in
// flight the result is discarded.
func (c *Controller) refreshMessages(ctx context.Context, conversationID string) error {
	incoming, err := c.fetchMessages(ctx, conversationID)
	if err != nil {
		c.publish(bus.KindSyncError, err)
		return err
	}

	c.mu.Lock()
	if c.open != conversationID {
		c.mu.Unlock()
		return nil
	}
	merged, changed := mergeMessages(c.messages[conversationID], incoming)
	c.messages[conversationID] = merged
	c.mu.Unlock()

	if !changed {
		return nil
	}
	for i := range incoming {
		c.persistMessage(&incoming[i])
	}
	c.publishMessages(conversationID)
	return nil
}

func (c *Controller) fetchMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if c.transport.State() == realtime.Connected {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.RealtimeTimeout)
		resp, err := c.transport.Call(callCtx, wire.Outbound{
			Type:           wire.GetMessages,
			ConversationID: conversationID,
			Limit:          c.opts.PageLimit,
		})
		cancel()
		if err == nil {
			msgs := resp.Messages
			reverse(msgs)
			return msgs, nil
		}
		c.logger.Debug("realtime message fetch failed, falling back to REST", zap.Error(err))
	}
	msgs, err := c.gateway.ListMessages(ctx, conversationID, c.opts.PageLimit, 0)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (c *Controller) openID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// touchConversationLocked updates preview, activity timestamp, and
// optionally the unread count for a conversation, creating a stub
// entry when a message arrives for a thread not in the list yet.
func (c *Controller) touchConversationLocked(conversationID, preview string, ts int64, bumpUnread bool) {
	for i := range c.conversations {
		if c.conversations[i].ID != conversationID {
			continue
		}
		if ts >= c.conversations[i].LastMessageAt {
			c.conversations[i].LastMessageAt = ts
			c.conversations[i].LastMessagePreview = truncate(preview, previewLimit)
		}
		if bumpUnread {
			c.conversations[i].UnreadCount++
		}
		sortConversations(c.conversations)
		return
	}
	conv := model.Conversation{
		ID:                 conversationID,
		LastMessagePreview: truncate(preview, previewLimit),
		LastMessageAt:      ts,
	}
	if bumpUnread {
		conv.UnreadCount = 1
	}
	c.conversations = append(c.conversations, conv)
	sortConversations(c.conversations)
}

func (c *Controller) zeroUnreadLocked(conversationID string) {
	for i := range c.conversations {
		if c.conversations[i].ID == conversationID {
			c.conversations[i].UnreadCount = 0
			return
		}
	}
}

func (c *Controller) persistConversations(convs []model.Conversation) {
	if c.db == nil {
		return
	}
	for i := range convs {
		if err := c.db.UpsertConversation(&convs[i]); err != nil {
			c.logger.Warn("cache write failed", zap.Error(err))
			return
		}
	}
}

func (c *Controller) persistMessage(m *model.Message) {
	if c.db == nil {
		return
	}
	if err := c.db.UpsertMessage(m); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}

func (c *Controller) publishConversations() {
	c.publish(bus.KindConversationsUpdated, c.Conversations())
}

func (c *Controller) publishMessages(conversationID string) {
	c.publish(bus.KindMessagesUpdated, MessagesUpdate{
		ConversationID: conversationID,
		Messages:       c.Messages(conversationID),
	})
}

func (c *Controller) publishTyping(conversationID string) {
	c.publish(bus.KindTyping, c.TypingIndicators(conversationID))
}

func (c *Controller) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func sortConversations(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastMessageAt > convs[j].LastMessageAt
	})
}

func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
