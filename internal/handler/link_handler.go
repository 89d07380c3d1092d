package handler

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/access"
	"github.com/paragon-edu/gatehouse/internal/auth"
	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/service"
)

// LinkHandler serves access link management and check requests.
type LinkHandler struct {
	links     *service.LinkService
	evaluator *access.Evaluator
	logger    zerolog.Logger
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(links *service.LinkService, evaluator *access.Evaluator, logger zerolog.Logger) *LinkHandler {
	return &LinkHandler{
		links:     links,
		evaluator: evaluator,
		logger:    logger.With().Str("handler", "link").Logger(),
	}
}

type createLinkRequest struct {
	TargetID        string `json:"target_id"`
	Mode            string `json:"mode"`
	TTLHours        *int   `json:"ttl_hours,omitempty"`
	RequireGroupKey bool   `json:"require_group_key,omitempty"`
}

type linkResponse struct {
	Token           string     `json:"token"`
	TargetID        string     `json:"target_id"`
	Mode            string     `json:"mode"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RequireGroupKey bool       `json:"require_group_key"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newLinkResponse(link *domain.AccessLink) linkResponse {
	return linkResponse{
		Token:           link.Token,
		TargetID:        link.TargetID,
		Mode:            string(link.Mode()),
		ExpiresAt:       link.ExpiresAt,
		RequireGroupKey: link.RequireGroupKey,
		CreatedAt:       link.CreatedAt,
	}
}

// Create mints a new access link.
// POST /api/links
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.links.CreateLink(r.Context(), service.CreateLinkInput{
		TargetID:        req.TargetID,
		Mode:            domain.LinkMode(req.Mode),
		TTLHours:        req.TTLHours,
		RequireGroupKey: req.RequireGroupKey,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newLinkResponse(out.Link))
}

// Check evaluates an access check for a token.
// GET /api/links/check?token=...&key=...
//
// A denial is a 200 with allowed=false; only infrastructure failures
// produce an error status.
func (h *LinkHandler) Check(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, h.logger, domain.NewDomainError(domain.ErrMalformed, "token query parameter is required", ""))
		return
	}
	groupKey := r.URL.Query().Get("key")

	principal := auth.PrincipalFromContext(r.Context())
	verdict, err := h.evaluator.CheckAccess(r.Context(), token, principal, groupKey, visitorID(r, principal))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, verdict)
}

type revokeRequest struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Revoke removes a user from a link's allow-list.
// POST /api/links/revoke
func (h *LinkHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.links.RevokeUser(r.Context(), req.Token, req.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type addUserRequest struct {
	UserID string `json:"user_id"`
}

// AddUser adds a user to a link's allow-list.
// POST /api/links/{token}/users
func (h *LinkHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req addUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.links.AddAllowedUser(r.Context(), token, req.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

type addGroupKeyRequest struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

type addGroupKeyResponse struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

// AddGroupKey attaches a group key to a link.
// POST /api/links/{token}/group-keys
func (h *LinkHandler) AddGroupKey(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req addGroupKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.links.AddGroupKey(r.Context(), service.AddGroupKeyInput{
		Token: token,
		Label: req.Label,
		Key:   req.Key,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, addGroupKeyResponse{
		ID:       out.ID,
		Label:    out.Label,
		Position: out.Position,
	})
}

// Stats returns the usage report for a link.
// GET /api/links/{token}/stats
func (h *LinkHandler) Stats(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	out, err := h.links.Stats(r.Context(), token)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, out.Stats)
}

// visitorID derives the visitor identity for visit tracking: the
// authenticated principal when present, otherwise the client address.
func visitorID(r *http.Request, principal *domain.Principal) string {
	if principal != nil {
		return "user:" + principal.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
