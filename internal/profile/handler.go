package profile

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	myMiddleware "fundify-chat/internal/middleware"
	"fundify-chat/internal/response"
	"fundify-chat/internal/wallet"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/profile", func(r chi.Router) {
		r.Get("/{wallet}", h.Get)
		r.Post("/", h.Upsert)
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Get(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		switch {
		case errors.Is(err, ErrProfileNotFound):
			response.NotFound(w, r, "Profile not found")
		case errors.Is(err, ErrValidation):
			response.BadRequest(w, r, err.Error())
		default:
			response.InternalError(w, r, "Server error", err)
		}
		return
	}
	response.OK(w, r, p)
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body")
		return
	}

	if authed, ok := myMiddleware.WalletFromContext(r.Context()); ok && strings.TrimSpace(req.Wallet) != "" && wallet.Normalize(req.Wallet) != authed {
		response.Forbidden(w, r, "wallet must be the authenticated wallet")
		return
	}

	p, err := h.Service.Upsert(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			response.BadRequest(w, r, err.Error())
			return
		}
		response.InternalError(w, r, "Server error", err)
		return
	}
	response.OK(w, r, p)
}
