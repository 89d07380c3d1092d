package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/service"
)

// PrepAccessHandler serves entitlement requests.
type PrepAccessHandler struct {
	prep   *service.PrepAccessService
	logger zerolog.Logger
}

// NewPrepAccessHandler creates a new PrepAccessHandler.
func NewPrepAccessHandler(prep *service.PrepAccessService, logger zerolog.Logger) *PrepAccessHandler {
	return &PrepAccessHandler{
		prep:   prep,
		logger: logger.With().Str("handler", "prep_access").Logger(),
	}
}

type grantRequest struct {
	UserEmail string `json:"user_email"`
	ExamID    string `json:"exam_id"`
	PlanDays  int    `json:"plan_days"`
}

type grantResponse struct {
	UserEmail string    `json:"user_email"`
	ExamID    string    `json:"exam_id"`
	PlanDays  int       `json:"plan_days"`
	StartAt   time.Time `json:"start_at"`
	ExpiryAt  time.Time `json:"expiry_at"`
	Status    string    `json:"status"`
}

// Grant creates an entitlement.
// POST /api/prep-access
func (h *PrepAccessHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.prep.Grant(r.Context(), service.GrantInput{
		UserEmail: req.UserEmail,
		ExamID:    req.ExamID,
		PlanDays:  req.PlanDays,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, grantResponse{
		UserEmail: out.Access.UserEmail,
		ExamID:    out.Access.ExamID,
		PlanDays:  out.Access.PlanDays,
		StartAt:   out.Access.StartAt,
		ExpiryAt:  out.Access.ExpiryAt,
		Status:    string(out.Access.Status),
	})
}

type checkResponse struct {
	Active   bool       `json:"active"`
	Status   string     `json:"status,omitempty"`
	ExpiryAt *time.Time `json:"expiry_at,omitempty"`
}

// Check reports whether an entitlement currently grants access.
// GET /api/prep-access/check?email=...&exam_id=...
func (h *PrepAccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	examID := r.URL.Query().Get("exam_id")
	if email == "" || examID == "" {
		writeError(w, h.logger, domain.NewDomainError(domain.ErrMalformed, "email and exam_id query parameters are required", ""))
		return
	}

	out, err := h.prep.Check(r.Context(), email, examID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := checkResponse{
		Active: out.Active,
		Status: string(out.Status),
	}
	if !out.ExpiryAt.IsZero() {
		resp.ExpiryAt = &out.ExpiryAt
	}

	writeJSON(w, http.StatusOK, resp)
}

type archiveRequest struct {
	UserEmail string `json:"user_email"`
	ExamID    string `json:"exam_id"`
}

// Archive marks an entitlement archived.
// POST /api/prep-access/archive
func (h *PrepAccessHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.prep.Archive(r.Context(), req.UserEmail, req.ExamID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}
