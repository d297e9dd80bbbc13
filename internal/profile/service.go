package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"fundify-chat/internal/wallet"
)

type Service struct {
	repo  Repository
	valid *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		valid: validator.New(),
	}
}

func (s *Service) Get(ctx context.Context, addr string) (*Profile, error) {
	addr = wallet.Normalize(addr)
	if addr == "" {
		return nil, fmt.Errorf("%w: wallet address is required", ErrValidation)
	}
	return s.repo.GetProfile(ctx, addr)
}

// Upsert creates the profile or updates the fields present in req.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (*Profile, error) {
	req.Wallet = wallet.Normalize(req.Wallet)
	if err := s.valid.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	p, err := s.repo.GetProfile(ctx, req.Wallet)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		p = &Profile{Wallet: req.Wallet}
	case err != nil:
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Bio != nil {
		p.Bio = *req.Bio
	}

	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
