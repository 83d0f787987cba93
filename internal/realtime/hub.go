package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/metrics"
	"github.com/shaiso/Swarm/internal/mq"
)

// Параметры соединения.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 64

	// DefaultReplayLimit — limit replay, если клиент его не указал.
	DefaultReplayLimit = 50
)

// Операции протокола.
const (
	OpSubscribe    = "subscribe"
	OpUnsubscribe  = "unsubscribe"
	OpReplay       = "replay"
	OpSubscribed   = "subscribed"
	OpUnsubscribed = "unsubscribed"
	OpError        = "error"
)

// Request — фрейм клиента.
type Request struct {
	Op         string    `json:"op"`
	CampaignID uuid.UUID `json:"campaignId"`
	Since      time.Time `json:"since,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// Reply — служебный фрейм сервера (ack, replay, ошибка).
type Reply struct {
	Op         string         `json:"op"`
	CampaignID uuid.UUID      `json:"campaignId,omitempty"`
	Events     []domain.Event `json:"events,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Hub хранит подписки клиентов и рассылает им события.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*client]struct{}

	buffer   *EventBuffer
	upgrader websocket.Upgrader
	metrics  metrics.Sink
	logger   *slog.Logger
}

// NewHub создаёт Hub поверх буфера событий.
func NewHub(buffer *EventBuffer, sink metrics.Sink, logger *slog.Logger) *Hub {
	if buffer == nil {
		buffer = NewEventBuffer(DefaultCapacity, DefaultTTL)
	}
	if sink == nil {
		sink = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*client]struct{}),
		buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: sink,
		logger:  logger,
	}
}

// Buffer возвращает буфер событий.
func (h *Hub) Buffer() *EventBuffer { return h.buffer }

// Broadcast сохраняет событие в буфере и рассылает подписчикам кампании.
// Клиент с переполненной очередью отправки отключается.
func (h *Hub) Broadcast(_ context.Context, e domain.Event) error {
	h.buffer.Add(e)

	msg, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.subs[e.CampaignID] {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "campaign_id", e.CampaignID)
		h.drop(c)
	}

	h.metrics.EventBroadcast(string(e.Type))
	return nil
}

// HandleMessage — mq.Handler для событий из swarm.events.
func (h *Hub) HandleMessage(ctx context.Context, d *mq.Delivery) error {
	event, err := mq.ParsePayload[domain.Event](&d.Message)
	if err != nil {
		return err
	}
	return h.Broadcast(ctx, event)
}

// Consume подписывает Hub на swarm.events и блокируется до отмены ctx.
func (h *Hub) Consume(ctx context.Context, conn *mq.Connection) error {
	consumer := mq.NewConsumer(conn, h.logger, mq.ConsumerConfig{
		Setup: func(ch *amqp.Channel) (string, error) {
			return mq.DeclareEventQueue(ch, mq.AllEventsBinding)
		},
		Handler:  h.HandleMessage,
		Prefetch: 50,
	})
	return consumer.Start(ctx)
}

// Subscribers возвращает количество подписчиков кампании.
func (h *Hub) Subscribers(campaignID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[campaignID])
}

// ServeHTTP переводит соединение на WebSocket и обслуживает клиента.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[uuid.UUID]struct{}),
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) subscribe(c *client, campaignID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[campaignID]
	if !ok {
		set = make(map[*client]struct{})
		h.subs[campaignID] = set
	}
	set[c] = struct{}{}
	c.subs[campaignID] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, campaignID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, campaignID)
}

func (h *Hub) removeLocked(c *client, campaignID uuid.UUID) {
	if set, ok := h.subs[campaignID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, campaignID)
		}
	}
	delete(c.subs, campaignID)
}

// drop снимает все подписки клиента и закрывает очередь отправки.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	for id := range c.subs {
		h.removeLocked(c, id)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		h.handle(c, req)
	}
}

func (h *Hub) handle(c *client, req Request) {
	if req.CampaignID == uuid.Nil {
		c.reply(Reply{Op: OpError, Error: "campaignId is required"})
		return
	}

	switch req.Op {
	case OpSubscribe:
		h.subscribe(c, req.CampaignID)
		c.reply(Reply{Op: OpSubscribed, CampaignID: req.CampaignID})
	case OpUnsubscribe:
		h.unsubscribe(c, req.CampaignID)
		c.reply(Reply{Op: OpUnsubscribed, CampaignID: req.CampaignID})
	case OpReplay:
		limit := req.Limit
		if limit <= 0 {
			limit = DefaultReplayLimit
		}
		limit = min(limit, h.buffer.capacity)
		events := h.buffer.Since(req.CampaignID, req.Since, limit)
		c.reply(Reply{Op: OpReplay, CampaignID: req.CampaignID, Events: events})
	default:
		c.reply(Reply{Op: OpError, CampaignID: req.CampaignID, Error: fmt.Sprintf("unknown op %q", req.Op)})
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// client — одно WebSocket-соединение.
// subs меняется только под Hub.mu.
type client struct {
	conn *websocket.Conn
	send chan []byte
	subs map[uuid.UUID]struct{}

	mu     sync.Mutex
	closed bool
}

// enqueue ставит сообщение в очередь отправки. false — очередь переполнена.
func (c *client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) reply(r Reply) {
	msg, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.enqueue(msg)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
