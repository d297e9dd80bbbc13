package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fundify-chat/internal/logger"
)

// Hub owns topic membership. Only Run touches clients and rooms, so neither
// needs a lock.
type Hub struct {
	clients    map[*Client]string          // client -> joined room ("" until joinRoom)
	rooms      map[string]map[*Client]bool // room -> subscribers
	broadcast  chan *Message               // From the bus -> Clients
	Register   chan *Client                // New connection
	Unregister chan *Client                // Connection gone
	join       chan joinRequest
	sizes      chan sizeRequest
	done       chan struct{}
	log        zerolog.Logger
}

type joinRequest struct {
	client *Client
	room   string
	ack    chan struct{}
}

type sizeRequest struct {
	room  string
	reply chan int
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]string),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		join:       make(chan joinRequest),
		sizes:      make(chan sizeRequest),
		done:       make(chan struct{}),
		log:        log.With().Str(logger.FieldComponent, "hub").Logger(),
	}
}

// Run is the loop that manages membership until ctx ends. Remaining clients
// are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			c.close()
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.Register:
			h.clients[c] = ""
			h.log.Debug().Str(logger.FieldClientID, c.ID).Msg("client registered")

		case c := <-h.Unregister:
			h.remove(c)

		case req := <-h.join:
			if _, ok := h.clients[req.client]; ok {
				h.leave(req.client)
				if h.rooms[req.room] == nil {
					h.rooms[req.room] = make(map[*Client]bool)
				}
				h.rooms[req.room][req.client] = true
				h.clients[req.client] = req.room
				h.log.Debug().
					Str(logger.FieldClientID, req.client.ID).
					Str(logger.FieldRoomID, req.room).
					Msg("client joined room")
			}
			close(req.ack)

		case req := <-h.sizes:
			req.reply <- len(h.rooms[req.room])

		case msg := <-h.broadcast:
			for c := range h.rooms[msg.ChatRoomID] {
				if err := c.deliver(msg); err != nil {
					// A subscriber that cannot keep up is dropped; the message
					// is already in the log and comes back with history.
					h.log.Warn().Err(err).
						Str(logger.FieldClientID, c.ID).
						Str(logger.FieldRoomID, msg.ChatRoomID).
						Msg("dropping client after failed delivery")
					h.remove(c)
				}
			}
		}
	}
}

// Consume feeds the bus into the hub until ctx ends or the bus closes.
func (h *Hub) Consume(ctx context.Context, bus Bus) error {
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to bus: %w", err)
	}
	return h.pipe(ctx, ch)
}

func (h *Hub) pipe(ctx context.Context, ch <-chan *Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			select {
			case h.broadcast <- msg:
			case <-h.done:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// subscribe moves c onto the room topic and returns once the hub applied it.
func (h *Hub) subscribe(ctx context.Context, c *Client, room string) error {
	req := joinRequest{client: c, room: room, ack: make(chan struct{})}
	select {
	case h.join <- req:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.ack:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// RoomSize reports how many connections are subscribed to room.
func (h *Hub) RoomSize(ctx context.Context, room string) (int, error) {
	req := sizeRequest{room: room, reply: make(chan int, 1)}
	select {
	case h.sizes <- req:
	case <-h.done:
		return 0, ErrHubStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return <-req.reply, nil
}

func (h *Hub) leave(c *Client) {
	room := h.clients[c]
	if room == "" {
		return
	}
	if subs, ok := h.rooms[room]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	h.clients[c] = ""
}

func (h *Hub) remove(c *Client) {
	// Always check if they exist to avoid double-deletion panics
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.leave(c)
	delete(h.clients, c)
	c.close()
	h.log.Debug().Str(logger.FieldClientID, c.ID).Msg("client unregistered")
}
