package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"fundify-chat/internal/response"
)

type contextKey string

const WalletKey contextKey = "wallet"

// TokenValidator is what the middleware needs from the auth service.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle requires a wallet token from the Authorization header or, for
// browsers opening a websocket, the token query parameter.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = strings.TrimSpace(parts[1])
			}
		}

		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			response.Unauthorized(w, r, "Missing authentication token")
			return
		}

		addr, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(w, r, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), WalletKey, addr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WalletFromContext returns the authenticated wallet, if the request went
// through the middleware.
func WalletFromContext(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(WalletKey).(string)
	return addr, ok && addr != ""
}
