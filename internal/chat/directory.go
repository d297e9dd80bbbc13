package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"fundify-chat/internal/wallet"
)

// Directory creates and looks up rooms.
type Directory struct {
	rooms  RoomRepository
	strict bool
	now    func() time.Time
	valid  *validator.Validate
}

type DirectoryOption func(*Directory)

// WithStrictAddresses makes CreateRoom reject malformed or mis-checksummed
// wallet addresses.
func WithStrictAddresses(strict bool) DirectoryOption {
	return func(d *Directory) { d.strict = strict }
}

func WithDirectoryClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) { d.now = now }
}

func NewDirectory(rooms RoomRepository, opts ...DirectoryOption) *Directory {
	d := &Directory{
		rooms: rooms,
		now:   time.Now,
		valid: validator.New(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// CreateRoom returns the id of the room for the pair, inserting it first when
// it does not exist yet. created is false when the room was already there.
func (d *Directory) CreateRoom(ctx context.Context, req CreateRoomRequest) (id string, created bool, err error) {
	raw := []string{req.WalletA, req.WalletB, req.CreatedBy}
	req.Label = strings.TrimSpace(req.Label)
	req.WalletA = wallet.Normalize(req.WalletA)
	req.WalletB = wallet.Normalize(req.WalletB)
	req.CreatedBy = wallet.Normalize(req.CreatedBy)

	if err := d.valid.Struct(req); err != nil {
		return "", false, fmt.Errorf("%w: label, walletA, walletB, and createdBy are required", ErrValidation)
	}
	if d.strict {
		// Checksums live in the caller's casing.
		for _, addr := range raw {
			if err := wallet.Validate(strings.TrimSpace(addr)); err != nil {
				return "", false, fmt.Errorf("%w: %v", ErrValidation, err)
			}
		}
	}

	id = wallet.RoomID(req.WalletA, req.WalletB)

	if _, err := d.rooms.FindRoom(ctx, id); err == nil {
		return id, false, nil
	} else if !errors.Is(err, ErrRoomNotFound) {
		return "", false, fmt.Errorf("find room %s: %w", id, err)
	}

	room := &Room{
		ID:        id,
		Users:     wallet.Participants(req.WalletA, req.WalletB),
		Label:     req.Label,
		CreatedBy: req.CreatedBy,
		CreatedAt: d.now().UTC().Truncate(time.Millisecond),
	}
	if err := d.rooms.InsertRoom(ctx, room); err != nil {
		if errors.Is(err, ErrRoomExists) {
			return id, false, nil
		}
		return "", false, fmt.Errorf("insert room %s: %w", id, err)
	}
	return id, true, nil
}

// ListRoomsForParticipant returns every room addr belongs to. The result is
// never nil.
func (d *Directory) ListRoomsForParticipant(ctx context.Context, addr string) ([]Room, error) {
	addr = wallet.Normalize(addr)
	if addr == "" {
		return nil, fmt.Errorf("%w: wallet is required", ErrValidation)
	}
	rooms, err := d.rooms.ListRoomsByParticipant(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("list rooms for %s: %w", addr, err)
	}
	if rooms == nil {
		rooms = []Room{}
	}
	return rooms, nil
}
