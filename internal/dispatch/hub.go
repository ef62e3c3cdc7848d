package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/metrics"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultSendBuffer   = 32
)

// Conn is the part of *websocket.Conn the hub drives.
type Conn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// HubParams configures the courier hub.
type HubParams struct {
	Logger       *logger.Logger
	Metrics      *metrics.FulfillmentMetrics
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

// Hub keeps the couriers connected to this instance and fans events out to
// them. A subscriber whose buffer is full is disconnected; it catches up
// from the snapshot when it reconnects.
type Hub struct {
	mu           sync.Mutex
	subscribers  map[*subscriber]struct{}
	logg         *logger.Logger
	metrics      *metrics.FulfillmentMetrics
	writeTimeout time.Duration
	pingInterval time.Duration
	sendBuffer   int
}

type subscriber struct {
	courierID uuid.UUID
	send      chan Event
}

func NewHub(params HubParams) *Hub {
	h := &Hub{
		subscribers:  map[*subscriber]struct{}{},
		logg:         params.Logger,
		metrics:      params.Metrics,
		writeTimeout: params.WriteTimeout,
		pingInterval: params.PingInterval,
		sendBuffer:   params.SendBuffer,
	}
	if h.logg == nil {
		h.logg = logger.Nop()
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = defaultWriteTimeout
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	return h
}

// Broadcast delivers to the couriers of this instance only.
func (h *Hub) Broadcast(_ context.Context, event Event) error {
	h.Deliver(event)
	return nil
}

// Deliver queues event for every connected courier without blocking.
func (h *Hub) Deliver(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- event:
		default:
			delete(h.subscribers, sub)
			close(sub.send)
			h.logg.Warn(h.logg.WithCourierID(context.Background(), sub.courierID.String()), "dropping slow courier stream")
		}
	}
}

// Online reports how many couriers are connected here.
func (h *Hub) Online() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Serve streams events to one courier until the connection or ctx ends.
// snapshot is written first so a fresh connection sees every open job.
func (h *Hub) Serve(ctx context.Context, conn Conn, courierID uuid.UUID, snapshot []Event) error {
	sub := &subscriber{courierID: courierID, send: make(chan Event, h.sendBuffer)}
	h.register(sub)
	defer h.unregister(sub)
	defer conn.Close()

	ctx = h.logg.WithCourierID(ctx, courierID.String())
	h.logg.Info(ctx, "courier connected")

	readDone := make(chan struct{})
	go h.readLoop(conn, readDone)

	for _, event := range snapshot {
		if err := h.write(conn, event); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(h.writeTimeout))
			return nil
		case <-readDone:
			h.logg.Info(ctx, "courier disconnected")
			return nil
		case event, ok := <-sub.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "stream too slow"),
					time.Now().Add(h.writeTimeout))
				return nil
			}
			if err := h.write(conn, event); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) write(conn Conn, event Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

// readLoop drains client frames so control messages are processed; couriers
// never send application data on this stream.
func (h *Hub) readLoop(conn Conn, done chan<- struct{}) {
	defer close(done)
	wait := 2 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.CourierConnected()
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	h.mu.Unlock()
	h.metrics.CourierDisconnected()
}
