package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/auth"
	"github.com/paragon-edu/gatehouse/internal/metrics"
	"github.com/paragon-edu/gatehouse/internal/service"
)

// AuthHandler serves login requests.
type AuthHandler struct {
	users   *service.UserService
	codec   *auth.SessionCodec
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *service.UserService, codec *auth.SessionCodec, ttl time.Duration, m *metrics.Metrics, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:   users,
		codec:   codec,
		ttl:     ttl,
		metrics: m,
		logger:  logger.With().Str("handler", "auth").Logger(),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates credentials and issues a session token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.codec.Issue(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSessionIssued()
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(h.ttl),
	})
}
