package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// memStore is an in-memory RoomRepository and MessageRepository.
type memStore struct {
	mu         sync.Mutex
	rooms      map[string]Room
	messages   map[string][]Message
	seq        int
	appendErr  error
	historyErr error
	inserts    int
}

func newMemStore() *memStore {
	return &memStore{
		rooms:    make(map[string]Room),
		messages: make(map[string][]Message),
	}
}

func (s *memStore) FindRoom(_ context.Context, id string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &r, nil
}

func (s *memStore) InsertRoom(_ context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return ErrRoomExists
	}
	s.rooms[room.ID] = *room
	s.inserts++
	return nil
}

func (s *memStore) ListRoomsByParticipant(_ context.Context, addr string) ([]Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := lo.Filter(lo.Values(s.rooms), func(r Room, _ int) bool {
		return lo.Contains(r.Users, addr)
	})
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms, nil
}

func (s *memStore) AppendMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.seq++
	msg.ID = strconv.Itoa(s.seq)
	s.messages[msg.ChatRoomID] = append(s.messages[msg.ChatRoomID], *msg)
	return nil
}

func (s *memStore) History(_ context.Context, roomID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return append([]Message{}, s.messages[roomID]...), nil
}

func (s *memStore) roomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// recordingBus records publishes without delivering them.
type recordingBus struct {
	mu        sync.Mutex
	published []*Message
	err       error
}

func (b *recordingBus) Publish(_ context.Context, msg *Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, msg)
	return nil
}

func (b *recordingBus) Subscribe(context.Context) (<-chan *Message, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// startHub runs a hub fed by bus until the test ends.
func startHub(t *testing.T, bus Bus) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)
	if bus != nil {
		// Subscribe before returning so no publish can slip past the hub.
		ch, err := bus.Subscribe(ctx)
		if err != nil {
			t.Fatal(err)
		}
		go hub.pipe(ctx, ch)
	}
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

// testClient is a hub client with no connection behind it; frames are read
// straight from its send queue.
func testClient(t *testing.T, hub *Hub, id, wallet string) *Client {
	t.Helper()
	c := NewClient(id, wallet, hub, nil, DefaultClientConfig(), zerolog.Nop())
	if !hub.registerClient(c) {
		t.Fatal("hub stopped")
	}
	return c
}

func readFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if !ok {
			t.Fatal("client send queue closed")
		}
		return decodeFrame(t, raw)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func noFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func decodeFrame(t *testing.T, raw []byte) Frame {
	t.Helper()
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("decode frame %s: %v", raw, err)
	}
	return f
}

func frameData[T any](t *testing.T, f Frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatalf("decode %s data %s: %v", f.Event, f.Data, err)
	}
	return v
}
