package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"fundify-chat/internal/logger"
	"fundify-chat/internal/wallet"
)

const lockStripes = 64

// stripe serializes append+publish for the rooms hashed onto it and keeps
// their timestamps non-decreasing.
type stripe struct {
	sync.Mutex
	last time.Time
}

// Service is the broadcast channel: it joins clients to room topics with a
// history replay and persists messages before publishing them.
type Service struct {
	rooms    RoomRepository
	messages MessageRepository
	bus      Bus
	hub      *Hub
	now      func() time.Time
	log      zerolog.Logger
	stripes  [lockStripes]stripe
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(rooms RoomRepository, messages MessageRepository, bus Bus, hub *Hub, log zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		rooms:    rooms,
		messages: messages,
		bus:      bus,
		hub:      hub,
		now:      time.Now,
		log:      log.With().Str(logger.FieldComponent, "channel").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) stripeFor(roomID string) *stripe {
	return &s.stripes[xxhash.Sum64String(roomID)%lockStripes]
}

// Send persists the message and then publishes it to the room topic. A
// message that failed to persist is never published. A failed publish is
// only logged: the message is durable and reaches clients through history.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Message, error) {
	msg := &Message{
		ChatRoomID: strings.TrimSpace(req.ChatRoomID),
		Sender:     wallet.Normalize(req.Sender),
		Receiver:   wallet.Normalize(req.Receiver),
		Body:       req.Message,
	}
	if msg.ChatRoomID == "" || msg.Sender == "" || strings.TrimSpace(msg.Body) == "" {
		return nil, fmt.Errorf("%w: chatRoomId, sender, and message are required", ErrValidation)
	}

	st := s.stripeFor(msg.ChatRoomID)
	st.Lock()
	defer st.Unlock()

	ts := s.now().UTC().Truncate(time.Millisecond)
	if ts.Before(st.last) {
		ts = st.last
	}
	msg.Timestamp = ts

	if err := s.messages.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message to %s: %w", msg.ChatRoomID, err)
	}
	st.last = ts

	if err := s.bus.Publish(ctx, msg); err != nil {
		s.log.Warn().Err(err).
			Str(logger.FieldRoomID, msg.ChatRoomID).
			Str("message_id", msg.ID).
			Msg("publish failed, message stays in history")
	}
	return msg, nil
}

// History returns the room's messages, oldest first.
func (s *Service) History(ctx context.Context, roomID string) ([]Message, error) {
	return s.messages.History(ctx, roomID)
}

// Join subscribes c to roomID and replays the history to c alone. A failed
// history load is logged and replayed as an empty list.
func (s *Service) Join(ctx context.Context, c *Client, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fmt.Errorf("%w: room id is required", ErrValidation)
	}
	if err := s.authorize(ctx, c, roomID); err != nil {
		return err
	}

	c.beginJoin(roomID)
	if err := s.hub.subscribe(ctx, c, roomID); err != nil {
		return fmt.Errorf("subscribe %s: %w", roomID, err)
	}

	history, err := s.messages.History(ctx, roomID)
	if err != nil {
		s.log.Error().Err(err).
			Str(logger.FieldRoomID, roomID).
			Str(logger.FieldClientID, c.ID).
			Msg("error fetching chat history")
		history = nil
	}
	return c.completeJoin(roomID, history)
}

// authorize only applies to authenticated connections: the wallet must be a
// participant of an existing room.
func (s *Service) authorize(ctx context.Context, c *Client, roomID string) error {
	if c == nil || c.Wallet == "" {
		return nil
	}
	room, err := s.rooms.FindRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return fmt.Errorf("%w: %s is not a participant of %s", ErrForbidden, c.Wallet, roomID)
		}
		return fmt.Errorf("find room %s: %w", roomID, err)
	}
	if !room.HasParticipant(c.Wallet) {
		return fmt.Errorf("%w: %s is not a participant of %s", ErrForbidden, c.Wallet, roomID)
	}
	return nil
}

// HandleFrame dispatches one inbound websocket frame. Failures are reported
// to the originating connection only.
func (s *Service) HandleFrame(ctx context.Context, c *Client, f Frame) {
	l := s.log.With().Str(logger.FieldClientID, c.ID).Str("event", f.Event).Logger()

	switch f.Event {
	case EventJoinRoom:
		var roomID string
		if err := json.Unmarshal(f.Data, &roomID); err != nil {
			c.Emit(EventError, ErrorPayload{Message: "joinRoom expects a room id"})
			return
		}
		if err := s.Join(ctx, c, roomID); err != nil {
			l.Warn().Err(err).Str(logger.FieldRoomID, roomID).Msg("join failed")
			c.Emit(EventError, ErrorPayload{Message: clientMessage(err, "failed to join room")})
		}

	case EventSendMessage:
		var req SendRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			c.Emit(EventError, ErrorPayload{Message: "sendMessage expects {chatRoomId, sender, receiver, message}"})
			return
		}
		if c.Wallet != "" {
			if wallet.Normalize(req.Sender) != c.Wallet {
				c.Emit(EventError, ErrorPayload{Message: ErrForbidden.Error() + ": sender must be the authenticated wallet"})
				return
			}
			if err := s.authorize(ctx, c, strings.TrimSpace(req.ChatRoomID)); err != nil {
				c.Emit(EventError, ErrorPayload{Message: clientMessage(err, "failed to send message")})
				return
			}
		}
		if _, err := s.Send(ctx, req); err != nil {
			l.Error().Err(err).Str(logger.FieldRoomID, req.ChatRoomID).Msg("error saving message")
			c.Emit(EventError, ErrorPayload{Message: clientMessage(err, "failed to send message")})
		}

	default:
		c.Emit(EventError, ErrorPayload{Message: fmt.Sprintf("unknown event %q", f.Event)})
	}
}

// clientMessage exposes validation and permission errors; anything else is
// replaced by fallback.
func clientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrForbidden):
		return err.Error()
	default:
		return fallback
	}
}
