package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"fundify-chat/internal/chat"
	"fundify-chat/internal/profile"
)

const (
	badgerConflictRetries = 5
	badgerSeqBandwidth    = 1000
)

// BadgerStore keeps rooms, messages, and profiles in an embedded badger
// database.
//
// Keys:
//
//	room:{id}                           -> Room JSON
//	participant:{hex wallet}:{id}       -> empty (index)
//	msg:{hex room}:{ts019d}:{seq020d}   -> Message JSON
//	profile:{wallet}                    -> Profile JSON
//
// Room and wallet are hex-encoded inside prefixes so no value can contain the
// separator. The padded timestamp and sequence keep a prefix scan in append
// order.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

type BadgerOptions struct {
	Path     string
	InMemory bool
}

func OpenBadger(o BadgerOptions) (*BadgerStore, error) {
	opts := badger.DefaultOptions(o.Path)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq:messages"), badgerSeqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func roomKey(id string) []byte {
	return []byte("room:" + id)
}

func participantPrefix(wallet string) []byte {
	return []byte("participant:" + hex.EncodeToString([]byte(wallet)) + ":")
}

func messagePrefix(roomID string) []byte {
	return []byte("msg:" + hex.EncodeToString([]byte(roomID)) + ":")
}

func messageKey(roomID string, at time.Time, seq uint64) []byte {
	return append(messagePrefix(roomID), fmt.Sprintf("%019d:%020d", at.UnixNano(), seq)...)
}

func profileKey(wallet string) []byte {
	return []byte("profile:" + wallet)
}

func (s *BadgerStore) FindRoom(_ context.Context, id string) (*chat.Room, error) {
	var room chat.Room
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &room)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, chat.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// InsertRoom writes the room and its participant index in one transaction.
// Concurrent inserts of the same id conflict in badger; the retry then sees
// the winner's record and reports ErrRoomExists.
func (s *BadgerStore) InsertRoom(ctx context.Context, room *chat.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < badgerConflictRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			if _, err := txn.Get(roomKey(room.ID)); err == nil {
				return chat.ErrRoomExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(roomKey(room.ID), data); err != nil {
				return err
			}
			for _, u := range lo.Uniq(room.Users) {
				key := append(participantPrefix(u), room.ID...)
				if err := txn.Set(key, []byte{}); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (s *BadgerStore) ListRoomsByParticipant(_ context.Context, wallet string) ([]chat.Room, error) {
	rooms := []chat.Room{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := participantPrefix(wallet)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			var room chat.Room
			if err := getJSON(txn, roomKey(id), &room); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *BadgerStore) AppendMessage(_ context.Context, msg *chat.Message) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next message sequence: %w", err)
	}
	stored := *msg
	stored.ID = uuid.NewString()

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(stored.ChatRoomID, stored.Timestamp, n), data)
	}); err != nil {
		return err
	}
	msg.ID = stored.ID
	return nil
}

func (s *BadgerStore) History(_ context.Context, roomID string) ([]chat.Message, error) {
	messages := []chat.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m chat.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *BadgerStore) GetProfile(_ context.Context, wallet string) (*profile.Profile, error) {
	var p profile.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, profileKey(wallet), &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BadgerStore) UpsertProfile(_ context.Context, p *profile.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(p.Wallet), data)
	})
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
