package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/service"
)

// UserHandler serves account management requests.
type UserHandler struct {
	users  *service.UserService
	logger zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger.With().Str("handler", "user").Logger(),
	}
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Create registers a new account.
// POST /api/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.users.CreateUser(r.Context(), service.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:        out.User.ID,
		Username:  out.User.Username,
		IsAdmin:   out.User.IsAdmin,
		IsActive:  out.User.IsActive,
		CreatedAt: out.User.CreatedAt,
	})
}
