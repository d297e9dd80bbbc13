package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fundify-chat/internal/wallet"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type WalletClaims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// Service signs and checks HS256 wallet tokens. Tokens are minted by whatever
// proved wallet ownership (a signed-message login upstream); this service only
// trusts the shared secret.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewService(secret, issuer string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

func (s *Service) Issue(addr string) (string, error) {
	addr = wallet.Normalize(addr)
	if addr == "" {
		return "", wallet.ErrEmpty
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, WalletClaims{
		Wallet: addr,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   addr,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	ss, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return ss, nil
}

// ValidateToken returns the normalized wallet carried by the token.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	claims := &WalletClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if !token.Valid || claims.Wallet == "" {
		return "", ErrInvalidToken
	}
	return wallet.Normalize(claims.Wallet), nil
}
