package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/infrastructure/event"
	"github.com/gamehub/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PartyAccessChecker decides whether an actor may see a balance holder
type PartyAccessChecker interface {
	CanAccessParty(ctx context.Context, actor partner.Actor, party ledger.Party) (bool, error)
}

// SSE event names
const (
	SSEEventConnected      = "connected"
	SSEEventHeartbeat      = "heartbeat"
	SSEEventBalanceUpdated = "balance_updated"
)

// SSEMessage is one server-sent event
type SSEMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
	ID    string `json:"id,omitempty"`

	update *event.BalanceUpdate
}

type sseClient struct {
	id    string
	actor partner.Actor
	ch    chan SSEMessage
	done  chan struct{}

	// visibility answers per target, filled lazily
	seen map[ledger.Party]bool
}

// BalanceStreamHandler pushes committed transfers to dashboards over SSE.
// Every client receives the updates whose actor it is or whose target lies
// in its subtree; a system admin receives all of them.
type BalanceStreamHandler struct {
	BaseHandler
	feed       event.BalanceFeed
	access     PartyAccessChecker
	logger     *zap.Logger
	clients    sync.Map // map[string]*sseClient
	ctx        context.Context
	cancel     context.CancelFunc
	heartbeat  time.Duration
	maxClients int
	started    bool
	startMu    sync.Mutex
}

// BalanceStreamOption configures the handler
type BalanceStreamOption func(*BalanceStreamHandler)

func WithStreamLogger(logger *zap.Logger) BalanceStreamOption {
	return func(h *BalanceStreamHandler) {
		h.logger = logger
	}
}

func WithStreamHeartbeat(interval time.Duration) BalanceStreamOption {
	return func(h *BalanceStreamHandler) {
		h.heartbeat = interval
	}
}

// WithStreamMaxClients caps concurrent connections; zero means no cap
func WithStreamMaxClients(max int) BalanceStreamOption {
	return func(h *BalanceStreamHandler) {
		h.maxClients = max
	}
}

// NewBalanceStreamHandler creates the SSE handler. Call Start before
// serving requests.
func NewBalanceStreamHandler(feed event.BalanceFeed, access PartyAccessChecker, opts ...BalanceStreamOption) *BalanceStreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &BalanceStreamHandler{
		feed:       feed,
		access:     access,
		logger:     zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		heartbeat:  30 * time.Second,
		maxClients: 1000,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start subscribes to the balance feed and begins sending heartbeats
func (h *BalanceStreamHandler) Start() error {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.started {
		return fmt.Errorf("balance stream already started")
	}

	go h.sendHeartbeats()
	go func() {
		err := h.feed.Subscribe(h.ctx, h.handleUpdate)
		if err != nil && h.ctx.Err() == nil {
			h.logger.Error("Balance feed subscription error", zap.Error(err))
		}
	}()

	h.started = true
	h.logger.Info("Balance stream started")
	return nil
}

// Stop ends the subscription and disconnects every client
func (h *BalanceStreamHandler) Stop() {
	h.cancel()
	h.clients.Range(func(_, value any) bool {
		if client, ok := value.(*sseClient); ok {
			close(client.done)
		}
		return true
	})
	h.logger.Info("Balance stream stopped")
}

func (h *BalanceStreamHandler) handleUpdate(update event.BalanceUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("Failed to marshal balance update", zap.Error(err))
		return
	}
	h.broadcast(SSEMessage{
		Event:  SSEEventBalanceUpdated,
		Data:   string(data),
		ID:     update.TransferID.String(),
		update: &update,
	})
}

// broadcast never blocks: a client whose buffer is full misses the message
func (h *BalanceStreamHandler) broadcast(msg SSEMessage) {
	h.clients.Range(func(_, value any) bool {
		client, ok := value.(*sseClient)
		if !ok {
			return true
		}
		select {
		case client.ch <- msg:
		default:
			h.logger.Warn("SSE client buffer full, dropping message",
				zap.String("client_id", client.id),
				zap.String("event", msg.Event))
		}
		return true
	})
}

func (h *BalanceStreamHandler) sendHeartbeats() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.broadcast(SSEMessage{
				Event: SSEEventHeartbeat,
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
		}
	}
}

// Stream godoc
// @Summary      Balance updates
// @Description  Server-sent events for committed transfers visible to the caller. Browsers may pass the access token as the access_token query parameter.
// @Tags         transfers
// @Produce      text/event-stream
// @Param        access_token query string false "Access token"
// @Success      200 {string} string "SSE stream"
// @Failure      401 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /balances/stream [get]
func (h *BalanceStreamHandler) Stream(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, "Maximum number of stream connections reached")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	const bufferSize = 100
	client := &sseClient{
		id:    uuid.NewString(),
		actor: actor,
		ch:    make(chan SSEMessage, bufferSize),
		done:  make(chan struct{}),
		seen:  make(map[ledger.Party]bool),
	}
	h.clients.Store(client.id, client)
	defer h.clients.Delete(client.id)

	h.logger.Info("SSE client connected",
		zap.String("client_id", client.id),
		zap.String("partner_id", actor.PartnerID.String()))

	h.sendEvent(c.Writer, SSEMessage{
		Event: SSEEventConnected,
		Data:  fmt.Sprintf(`{"client_id":%q,"timestamp":%d}`, client.id, time.Now().Unix()),
	})
	c.Writer.Flush()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("client_id", client.id))
			return
		case <-client.done:
			return
		case <-h.ctx.Done():
			return
		case msg := <-client.ch:
			if msg.update != nil && !h.visible(reqCtx, client, msg.update) {
				continue
			}
			h.sendEvent(c.Writer, msg)
			c.Writer.Flush()
		}
	}
}

// visible runs on the client's own goroutine, so seen needs no lock
func (h *BalanceStreamHandler) visible(ctx context.Context, client *sseClient, u *event.BalanceUpdate) bool {
	if client.actor.IsSystemAdmin() || u.ActorID == client.actor.PartnerID {
		return true
	}
	if v, ok := client.seen[u.Target]; ok {
		return v
	}
	ok, err := h.access.CanAccessParty(ctx, client.actor, u.Target)
	if err != nil {
		h.logger.Warn("Balance update visibility check failed",
			zap.String("client_id", client.id),
			zap.String("target", u.Target.String()),
			zap.Error(err))
		return false
	}
	client.seen[u.Target] = ok
	return ok
}

func (h *BalanceStreamHandler) sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

// ClientCount returns the number of connected clients
func (h *BalanceStreamHandler) ClientCount() int {
	count := 0
	h.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
