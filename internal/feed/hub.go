package feed

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/internal/models"
)

// Source loads the full current notice set in base order
// (is_pinned DESC, created_at DESC).
type Source interface {
	Snapshot(ctx context.Context) ([]models.Notice, error)
}

// Callback receives the visibility-filtered snapshot for one subscriber.
type Callback func(notices []models.Notice)

// Hub maintains live subscriptions over the notice set. Every change signal
// triggers a reload of the full set; each subscriber then receives the
// snapshot filtered by its viewer role. Subscribers never see partial diffs.
type Hub struct {
	source Source
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64

	wake chan struct{}
}

type subscription struct {
	role models.UserRole
	fn   Callback

	// mu serializes delivery against teardown: once close() returns, no
	// further callback can fire for this subscription.
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (s *subscription) deliver(notices []models.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(notices)
}

func (s *subscription) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
}

// NewHub constructs a hub over the given snapshot source.
func NewHub(source Source, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		source: source,
		logger: logger,
		subs:   make(map[uint64]*subscription),
		wake:   make(chan struct{}, 1),
	}
}

// Subscribe registers a callback for the given viewer role and returns an
// idempotent unsubscribe handle plus a done channel. The current snapshot is
// delivered immediately; afterwards the callback fires on every change until
// unsubscribed. Once unsubscribe returns, the callback will not fire again.
//
// done is closed when the subscription ends for any reason, including the hub
// dropping it after a reload failure; delivery never resumes on a dropped
// subscription, only a fresh Subscribe re-establishes it.
func (h *Hub) Subscribe(role models.UserRole, fn Callback) (unsubscribe func(), done <-chan struct{}) {
	sub := &subscription{role: role, fn: fn, done: make(chan struct{})}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	drop := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.close()
	}

	// Initial snapshot, matching store-subscription semantics: the
	// subscriber sees the current set without waiting for a change. When the
	// load fails the subscription is dead on arrival.
	if snapshot, err := h.load(context.Background()); err != nil {
		h.logger.Warn("feed: initial snapshot failed", zap.Error(err))
		drop()
	} else {
		sub.deliver(FilterVisible(snapshot, role))
	}

	var once sync.Once
	return func() { once.Do(drop) }, sub.done
}

// Notify signals that the notice set changed. Signals coalesce: a burst of
// writes produces at least one rebroadcast, not one per write.
func (h *Hub) Notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Run drives broadcasts until the context is cancelled. A reload failure
// drops every live subscription; delivery resumes only for viewers that
// subscribe again.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
			h.broadcast(ctx)
		}
	}
}

// Listen bridges a Redis pub/sub channel into change signals so writes on
// other instances also reach local subscribers. Returns when the context is
// cancelled or the channel closes.
func (h *Hub) Listen(ctx context.Context, client *redis.Client, channel string) {
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close() //nolint:errcheck

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				h.logger.Warn("feed: redis change channel closed", zap.String("channel", channel))
				return
			}
			h.Notify()
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) broadcast(ctx context.Context) {
	snapshot, err := h.load(ctx)
	if err != nil {
		h.dropAll(err)
		return
	}

	h.mu.Lock()
	targets := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(FilterVisible(snapshot, sub.role))
	}
}

// dropAll tears down every live subscription after a reload failure. There is
// no automatic retry; each viewer must subscribe again to resume delivery.
func (h *Hub) dropAll(err error) {
	h.mu.Lock()
	dead := make([]*subscription, 0, len(h.subs))
	for id, sub := range h.subs {
		dead = append(dead, sub)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, sub := range dead {
		sub.close()
	}
	h.logger.Error("feed: snapshot reload failed, dropping subscriptions",
		zap.Error(err), zap.Int("dropped", len(dead)))
}

func (h *Hub) load(ctx context.Context) ([]models.Notice, error) {
	notices, err := h.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for i := range notices {
		if notices[i].CreatedAt.IsZero() {
			notices[i].CreatedAt = now
		}
	}
	return notices, nil
}

// Publisher fans a local write out to the hub and, when configured, to the
// Redis channel other instances listen on. Publish failures are logged, not
// surfaced: local subscribers were already notified.
type Publisher struct {
	hub     *Hub
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewPublisher builds a publisher. client may be nil for single-instance runs.
func NewPublisher(hub *Hub, client *redis.Client, channel string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{hub: hub, client: client, channel: channel, logger: logger}
}

// NoticesChanged signals a change to the notice set.
func (p *Publisher) NoticesChanged(ctx context.Context) {
	p.hub.Notify()
	if p.client == nil {
		return
	}
	if err := p.client.Publish(ctx, p.channel, "changed").Err(); err != nil {
		p.logger.Warn("feed: publish change signal failed", zap.Error(err))
	}
}
