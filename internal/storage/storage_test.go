package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundify-chat/internal/chat"
	"fundify-chat/internal/db"
	"fundify-chat/internal/profile"
	"fundify-chat/internal/wallet"
)

const (
	walletA = "0xaaa0000000000000000000000000000000000111"
	walletB = "0xbbb0000000000000000000000000000000000222"
	walletC = "0xccc0000000000000000000000000000000000333"
)

func newRoom(a, b string, at time.Time) *chat.Room {
	return &chat.Room{
		ID:        wallet.RoomID(a, b),
		Users:     wallet.Participants(a, b),
		Label:     "Campaign chat",
		CreatedBy: a,
		CreatedAt: at.UTC().Truncate(time.Millisecond),
	}
}

// testStoreContract runs the behaviour every driver must share.
func testStoreContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("room round trip", func(t *testing.T) {
		s := open(t)
		room := newRoom(walletA, walletB, time.Now())
		require.NoError(t, s.InsertRoom(ctx, room))

		got, err := s.FindRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.ID, got.ID)
		assert.Equal(t, room.Users, got.Users)
		assert.Equal(t, room.Label, got.Label)
		assert.Equal(t, room.CreatedBy, got.CreatedBy)
		assert.True(t, room.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("missing room", func(t *testing.T) {
		s := open(t)
		_, err := s.FindRoom(ctx, "room_nobody_nowhere")
		require.ErrorIs(t, err, chat.ErrRoomNotFound)
	})

	t.Run("duplicate insert reports exists", func(t *testing.T) {
		s := open(t)
		room := newRoom(walletA, walletB, time.Now())
		require.NoError(t, s.InsertRoom(ctx, room))
		require.ErrorIs(t, s.InsertRoom(ctx, room), chat.ErrRoomExists)

		rooms, err := s.ListRoomsByParticipant(ctx, walletA)
		require.NoError(t, err)
		assert.Len(t, rooms, 1)
	})

	t.Run("concurrent insert has one winner", func(t *testing.T) {
		s := open(t)
		room := newRoom(walletA, walletB, time.Now())

		const n = 16
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := *room
				errs[i] = s.InsertRoom(ctx, &r)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			require.ErrorIs(t, err, chat.ErrRoomExists)
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("list by participant", func(t *testing.T) {
		s := open(t)
		base := time.Now()
		require.NoError(t, s.InsertRoom(ctx, newRoom(walletA, walletB, base)))
		require.NoError(t, s.InsertRoom(ctx, newRoom(walletC, walletA, base.Add(time.Second))))
		require.NoError(t, s.InsertRoom(ctx, newRoom(walletB, walletC, base.Add(2*time.Second))))

		rooms, err := s.ListRoomsByParticipant(ctx, walletA)
		require.NoError(t, err)
		require.Len(t, rooms, 2)
		assert.Equal(t, wallet.RoomID(walletA, walletB), rooms[0].ID)
		assert.Equal(t, wallet.RoomID(walletA, walletC), rooms[1].ID)

		none, err := s.ListRoomsByParticipant(ctx, "0xdead")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("history keeps append order", func(t *testing.T) {
		s := open(t)
		roomID := wallet.RoomID(walletA, walletB)
		ts := time.Now().UTC().Truncate(time.Millisecond)

		var ids []string
		for i := 0; i < 5; i++ {
			m := &chat.Message{
				ChatRoomID: roomID,
				Sender:     walletA,
				Receiver:   walletB,
				Body:       fmt.Sprintf("msg %d", i),
				// Equal timestamps must still come back in append order.
				Timestamp: ts,
			}
			require.NoError(t, s.AppendMessage(ctx, m))
			require.NotEmpty(t, m.ID)
			ids = append(ids, m.ID)
		}
		require.NoError(t, s.AppendMessage(ctx, &chat.Message{
			ChatRoomID: "room_other",
			Sender:     walletC,
			Body:       "elsewhere",
			Timestamp:  ts,
		}))

		history, err := s.History(ctx, roomID)
		require.NoError(t, err)
		require.Len(t, history, 5)
		for i, m := range history {
			assert.Equal(t, ids[i], m.ID)
			assert.Equal(t, fmt.Sprintf("msg %d", i), m.Body)
			assert.Equal(t, walletB, m.Receiver)
			assert.True(t, ts.Equal(m.Timestamp))
		}

		empty, err := s.History(ctx, "room_empty")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("profiles", func(t *testing.T) {
		s := open(t)
		_, err := s.GetProfile(ctx, walletA)
		require.ErrorIs(t, err, profile.ErrProfileNotFound)

		require.NoError(t, s.UpsertProfile(ctx, &profile.Profile{Wallet: walletA, Name: "Ada"}))
		require.NoError(t, s.UpsertProfile(ctx, &profile.Profile{Wallet: walletA, Name: "Ada", Bio: "builder"}))

		p, err := s.GetProfile(ctx, walletA)
		require.NoError(t, err)
		assert.Equal(t, profile.Profile{Wallet: walletA, Name: "Ada", Bio: "builder"}, *p)
	})
}

func TestBadgerStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		s, err := OpenBadger(BadgerOptions{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBadger(BadgerOptions{Path: dir})
	require.NoError(t, err)
	room := newRoom(walletA, walletB, time.Now())
	require.NoError(t, s.InsertRoom(ctx, room))
	require.NoError(t, s.AppendMessage(ctx, &chat.Message{
		ChatRoomID: room.ID, Sender: walletA, Body: "hi", Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, s.Close())

	s, err = OpenBadger(BadgerOptions{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	history, err := s.History(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Body)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	testStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		name := "chat_test_" + uuid.NewString()[:8]
		s, err := OpenMongo(ctx, MongoOptions{URI: uri, Database: name, Timeout: 5 * time.Second})
		require.NoError(t, err)
		t.Cleanup(func() {
			s.client.Database(name).Drop(context.Background())
			s.Close()
		})
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	testStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		d, err := db.NewDatabase(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, d.AutoMigrate(ctx))
		for _, table := range []string{"chat_messages", "chat_rooms", "wallet_profiles"} {
			_, err := d.Conn.ExecContext(ctx, "TRUNCATE "+table)
			require.NoError(t, err)
		}
		s := NewPostgresStore(d)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
