package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"

	"fundify-chat/internal/chat"
	"fundify-chat/internal/db"
	"fundify-chat/internal/profile"
)

// PostgresStore maps the repositories onto the tables created by
// db.AutoMigrate.
type PostgresStore struct {
	db   *db.Database
	tmap *pgtype.Map
}

func NewPostgresStore(d *db.Database) *PostgresStore {
	return &PostgresStore{db: d, tmap: pgtype.NewMap()}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) FindRoom(ctx context.Context, id string) (*chat.Room, error) {
	var room chat.Room
	err := s.db.Conn.QueryRowContext(ctx,
		`SELECT id, label, users, created_by, created_at FROM chat_rooms WHERE id = $1`, id,
	).Scan(&room.ID, &room.Label, s.tmap.SQLScanner(&room.Users), &room.CreatedBy, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// InsertRoom relies on the primary key: a losing concurrent insert affects no
// rows and reports ErrRoomExists.
func (s *PostgresStore) InsertRoom(ctx context.Context, room *chat.Room) error {
	res, err := s.db.Conn.ExecContext(ctx,
		`INSERT INTO chat_rooms (id, label, users, created_by, created_at)
         VALUES ($1, $2, $3, $4, $5)
         ON CONFLICT (id) DO NOTHING`,
		room.ID, room.Label, room.Users, room.CreatedBy, room.CreatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return chat.ErrRoomExists
	}
	return nil
}

func (s *PostgresStore) ListRoomsByParticipant(ctx context.Context, wallet string) ([]chat.Room, error) {
	rows, err := s.db.Conn.QueryContext(ctx,
		`SELECT id, label, users, created_by, created_at
         FROM chat_rooms
         WHERE $1 = ANY(users)
         ORDER BY created_at, id`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []chat.Room{}
	for rows.Next() {
		var room chat.Room
		if err := rows.Scan(&room.ID, &room.Label, s.tmap.SQLScanner(&room.Users), &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *chat.Message) error {
	var id int64
	err := s.db.Conn.QueryRowContext(ctx,
		`INSERT INTO chat_messages (chat_room_id, sender, receiver, body, created_at)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id`,
		msg.ChatRoomID, msg.Sender, msg.Receiver, msg.Body, msg.Timestamp,
	).Scan(&id)
	if err != nil {
		return err
	}
	msg.ID = strconv.FormatInt(id, 10)
	return nil
}

func (s *PostgresStore) History(ctx context.Context, roomID string) ([]chat.Message, error) {
	rows, err := s.db.Conn.QueryContext(ctx,
		`SELECT id, chat_room_id, sender, receiver, body, created_at
         FROM chat_messages
         WHERE chat_room_id = $1
         ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var (
			m  chat.Message
			id int64
		)
		if err := rows.Scan(&id, &m.ChatRoomID, &m.Sender, &m.Receiver, &m.Body, &m.Timestamp); err != nil {
			return nil, err
		}
		m.ID = strconv.FormatInt(id, 10)
		m.Timestamp = m.Timestamp.UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) GetProfile(ctx context.Context, wallet string) (*profile.Profile, error) {
	var p profile.Profile
	err := s.db.Conn.QueryRowContext(ctx,
		`SELECT wallet, name, bio FROM wallet_profiles WHERE wallet = $1`, wallet,
	).Scan(&p.Wallet, &p.Name, &p.Bio)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *profile.Profile) error {
	_, err := s.db.Conn.ExecContext(ctx,
		`INSERT INTO wallet_profiles (wallet, name, bio)
         VALUES ($1, $2, $3)
         ON CONFLICT (wallet) DO UPDATE
         SET name = EXCLUDED.name, bio = EXCLUDED.bio, updated_at = now()`,
		p.Wallet, p.Name, p.Bio,
	)
	return err
}
