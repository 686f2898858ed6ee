package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/avdeyev/matchlink-server/internal/auth"
	"github.com/avdeyev/matchlink-server/internal/core"
	"github.com/avdeyev/matchlink-server/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	authService *auth.Service
	messages    store.MessageStore
	hub         *core.Hub
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, messages store.MessageStore, hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		messages:    messages,
		hub:         hub,
		log:         logger,
	}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is one message in a history response.
type MessageResponse struct {
	ID     int64  `json:"id"`
	Key    string `json:"key"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`
	Text   string `json:"text"`
	TS     int64  `json:"ts"`
	ReadAt *int64 `json:"read_at,omitempty"`
}

// OnlineUserResponse is one entry of the online roster.
type OnlineUserResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Register handles user registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
			return
		}
		if errors.Is(err, auth.ErrInvalidUsername) || errors.Is(err, auth.ErrInvalidPassword) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to register user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("username", req.Username).Msg("user registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// Messages returns paged conversation history with a peer.
// GET /api/messages?peer_id=&limit=&before_id=
func (h *APIHandlers) Messages(c *gin.Context) {
	userID := c.GetInt64(ContextKeyUserID)

	peerID, err := strconv.ParseInt(c.Query("peer_id"), 10, 64)
	if err != nil || peerID <= 0 || peerID == userID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "valid peer_id is required"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 200"})
			return
		}
		limit = parsed
	}

	var beforeID *int64
	if raw := c.Query("before_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "before_id must be a positive id"})
			return
		}
		beforeID = &parsed
	}

	key := core.DirectKey(userID, peerID)
	messages, err := h.messages.ListConversation(c.Request.Context(), key, limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation", key).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		resp := MessageResponse{
			ID:   m.ID,
			Key:  m.ConversationKey,
			From: m.SenderID,
			To:   m.RecipientID,
			Text: m.Body,
			TS:   m.CreatedAt.Unix(),
		}
		if m.ReadAt != nil {
			ts := m.ReadAt.Unix()
			resp.ReadAt = &ts
		}
		out = append(out, resp)
	}

	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// Online returns the current presence roster.
// GET /api/online
func (h *APIHandlers) Online(c *gin.Context) {
	roster := h.hub.Roster()
	out := make([]OnlineUserResponse, 0, len(roster))
	for _, entry := range roster {
		out = append(out, OnlineUserResponse{UserID: entry.UserID, Username: entry.Username})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}
