package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var errSlowClient = errors.New("client send buffer is full")

// ClientConfig holds the websocket timing and size limits.
type ClientConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
	}
}

// Client is a middleman between the websocket connection and the hub.
//
// Everything that writes to send goes through mu, so the hub closing the
// queue can never race a history write from the read pump.
type Client struct {
	ID string
	// Wallet is the authenticated wallet, empty when auth is off.
	Wallet string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	cfg  ClientConfig
	log  zerolog.Logger

	mu      sync.Mutex
	room    string
	joining bool
	pending []*Message
	closed  bool
}

func NewClient(id, wallet string, hub *Hub, conn *websocket.Conn, cfg ClientConfig, log zerolog.Logger) *Client {
	return &Client{
		ID:     id,
		Wallet: wallet,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		cfg:    cfg,
		log:    log,
	}
}

// Emit queues one event frame for this connection only.
func (c *Client) Emit(event string, data any) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueue(frame)
}

// enqueue must be called with mu held.
func (c *Client) enqueue(frame []byte) error {
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSlowClient
	}
}

// beginJoin switches the client to room and starts buffering broadcasts until
// completeJoin has sent the history.
func (c *Client) beginJoin(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
	c.joining = true
	c.pending = nil
}

// completeJoin sends the history, then whatever was broadcast meanwhile that
// the history did not already contain.
func (c *Client) completeJoin(room string, history []Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != room {
		return nil
	}
	pending := c.pending
	c.pending = nil
	c.joining = false

	if history == nil {
		history = []Message{}
	}
	frame, err := encodeFrame(EventChatHistory, history)
	if err != nil {
		return err
	}
	if err := c.enqueue(frame); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(history))
	for _, m := range history {
		seen[m.ID] = struct{}{}
	}
	for _, m := range pending {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		frame, err := encodeFrame(EventReceiveMessage, m)
		if err != nil {
			return err
		}
		if err := c.enqueue(frame); err != nil {
			return err
		}
	}
	return nil
}

// deliver is called by the hub for a broadcast on the client's topic.
func (c *Client) deliver(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.room != msg.ChatRoomID {
		return nil
	}
	if c.joining {
		c.pending = append(c.pending, msg)
		return nil
	}
	frame, err := encodeFrame(EventReceiveMessage, msg)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps frames from the websocket connection to handle.
func (c *Client) ReadPump(handle func(*Client, Frame)) {
	defer func() {
		// Cleanup: If connection dies, tell Hub to unregister
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			break
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			c.Emit(EventError, ErrorPayload{Message: "malformed frame"})
			continue
		}
		handle(c, f)
	}
}

// WritePump pumps queued frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				// The Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
