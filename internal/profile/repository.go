package profile

import (
	"context"
	"errors"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrValidation      = errors.New("invalid profile")
)

type Repository interface {
	GetProfile(ctx context.Context, wallet string) (*Profile, error)
	UpsertProfile(ctx context.Context, p *Profile) error
}
