package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fundify-chat/internal/logger"
	myMiddleware "fundify-chat/internal/middleware"
	"fundify-chat/internal/response"
	"fundify-chat/internal/wallet"
)

type Handler struct {
	directory *Directory
	service   *Service
	hub       *Hub
	upgrader  websocket.Upgrader
	clientCfg ClientConfig
	// connCtx outlives individual requests; websocket work is bound to it.
	connCtx context.Context
	log     zerolog.Logger
}

// NewHandler builds the chat handler. Websocket origins must match
// allowedOrigins; "*" allows any origin.
func NewHandler(ctx context.Context, directory *Directory, service *Service, hub *Hub, allowedOrigins []string, cfg ClientConfig, log zerolog.Logger) *Handler {
	return &Handler{
		directory: directory,
		service:   service,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clientCfg: cfg,
		connCtx:   ctx,
		log:       log,
	}
}

// RegisterRoutes mounts the REST routes under /api/chat and the websocket
// endpoint at /ws.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/create", h.CreateRoom)
		r.Get("/rooms/{wallet}", h.ListRooms)
	})
	r.Get("/ws", h.ServeWs)
}

// CreateRoom handles POST /api/chat/create.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body")
		return
	}

	// A missing createdBy is left to validation.
	if authed, ok := myMiddleware.WalletFromContext(r.Context()); ok && strings.TrimSpace(req.CreatedBy) != "" && wallet.Normalize(req.CreatedBy) != authed {
		response.Forbidden(w, r, "createdBy must be the authenticated wallet")
		return
	}

	id, created, err := h.directory.CreateRoom(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			response.BadRequest(w, r, err.Error())
			return
		}
		response.InternalError(w, r, "Failed to create chat room", err)
		return
	}

	l := logger.Ctx(r.Context())
	l.Info().Str(logger.FieldRoomID, id).Bool("created", created).Msg("chat room resolved")

	response.Created(w, r, CreateRoomResponse{
		Message:    "Chat room created or already exists",
		ChatRoomID: id,
	})
}

// ListRooms handles GET /api/chat/rooms/{wallet}.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "wallet")
	if decoded, err := url.PathUnescape(addr); err == nil {
		addr = decoded
	}

	rooms, err := h.directory.ListRoomsForParticipant(r.Context(), addr)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			response.BadRequest(w, r, err.Error())
			return
		}
		response.InternalError(w, r, "Failed to fetch chat rooms", err)
		return
	}
	response.OK(w, r, RoomsResponse{Chats: rooms})
}

// ServeWs upgrades the request and starts the client pumps.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	authed, _ := myMiddleware.WalletFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		l := logger.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	cl := h.log.With().Str(logger.FieldClientID, id).Logger()
	if authed != "" {
		cl = cl.With().Str(logger.FieldWallet, authed).Logger()
	}
	client := NewClient(id, authed, h.hub, conn, h.clientCfg, cl)

	if !h.hub.registerClient(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	cl.Info().Msg("user connected")

	// These run in new goroutines, ServeWs returns immediately.
	go client.WritePump()
	go func() {
		client.ReadPump(func(c *Client, f Frame) {
			h.service.HandleFrame(h.connCtx, c, f)
		})
		cl.Info().Msg("user disconnected")
	}()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send Origin.
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
