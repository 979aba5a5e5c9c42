// Package websocket fans telemetry frames out to subscribers. Each
// subscriber owns a bounded send queue; a slow subscriber loses its oldest
// undelivered frames rather than stalling the others.
package websocket

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"obd-go-gateway/internal/telemetry"
)

// Hub maintains the set of active subscribers and broadcasts frames to them.
// The run loop is the sole owner of the client set.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	store   *telemetry.Store
	log     *logrus.Logger
	count   atomic.Int64
	dropped atomic.Int64

	// OnDrop, when set, observes every frame dropped from a full queue.
	OnDrop func()
	// OnCount, when set, observes subscriber count changes.
	OnCount func(n int)
}

func NewHub(store *telemetry.Store, log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		store:      store,
		log:        log,
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int { return int(h.count.Load()) }

// DroppedFrames returns the total frames discarded from full send queues.
func (h *Hub) DroppedFrames() int64 { return h.dropped.Load() }

// Run owns the client set until ctx is cancelled, at which point every
// subscriber connection is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.count.Store(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Add(1)
			if h.OnCount != nil {
				h.OnCount(len(h.clients))
			}
			h.log.WithField("remote", client.conn.RemoteAddr()).Info("subscriber connected")
			// New subscribers get the current frame immediately instead of
			// waiting out a full polling cycle.
			if msg, err := h.store.Current().Encode(); err == nil {
				h.enqueue(client, msg)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Add(-1)
				if h.OnCount != nil {
					h.OnCount(len(h.clients))
				}
				h.log.WithField("remote", client.conn.RemoteAddr()).Info("subscriber disconnected")
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				h.enqueue(client, msg)
			}
		}
	}
}

// enqueue delivers msg to one subscriber's queue. When the queue is full the
// oldest undelivered message is dropped in favor of the newest: this is live
// telemetry, freshness beats completeness.
func (h *Hub) enqueue(client *Client, msg []byte) {
	select {
	case client.send <- msg:
		return
	default:
	}
	select {
	case <-client.send:
		h.dropped.Add(1)
		if h.OnDrop != nil {
			h.OnDrop()
		}
	default:
	}
	select {
	case client.send <- msg:
	default:
	}
}

// Publish implements the poller sink: frames are serialized once and handed
// to the run loop for fan-out in production order.
func (h *Hub) Publish(frame telemetry.Frame) {
	msg, err := frame.Encode()
	if err != nil {
		h.log.WithError(err).Error("frame encode failed")
		return
	}
	h.Broadcast(msg)
}

// Broadcast sends a raw message to every subscriber.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		// The hub loop is wedged; losing a frame here is preferable to
		// blocking the producer.
		h.dropped.Add(1)
	}
}
