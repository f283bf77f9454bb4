package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/classward/sessiond/internal/api/middleware"
	"github.com/classward/sessiond/internal/api/response"
	"github.com/classward/sessiond/internal/roles"
	"github.com/classward/sessiond/internal/session"
)

// SessionHandler exposes the session lifecycle to collaborator processes.
type SessionHandler struct {
	orc *session.Orchestrator
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(orc *session.Orchestrator) *SessionHandler {
	return &SessionHandler{orc: orc}
}

type signInRequest struct {
	Credential   string `json:"credential"`
	EntrySurface string `json:"entrySurface"`
}

type principalResponse struct {
	ID                  string   `json:"id"`
	Email               string   `json:"email"`
	EmailVerified       bool     `json:"emailVerified"`
	CredentialExpiresAt string   `json:"credentialExpiresAt,omitempty"`
	Roles               []string `json:"roles"`
}

type actorResponse struct {
	PrincipalID string `json:"principalId"`
	Email       string `json:"email"`
	Emulated    bool   `json:"emulated"`
}

type activityRequest struct {
	Type        string `json:"type"`
	ContextData string `json:"contextData"`
}

type emulationRequest struct {
	Email   string            `json:"email"`
	Profile map[string]string `json:"profile"`
}

func toPrincipalResponse(p *session.Principal) principalResponse {
	resp := principalResponse{
		ID:            p.ID,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
	}
	if !p.CredentialExpiresAt.IsZero() {
		resp.CredentialExpiresAt = p.CredentialExpiresAt.UTC().Format(time.RFC3339)
	}
	for _, r := range p.Roles.List() {
		resp.Roles = append(resp.Roles, string(r))
	}
	return resp
}

// GetPrincipal handles GET /session/principal.
func (h *SessionHandler) GetPrincipal(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	p := h.orc.CurrentPrincipal()
	if p == nil {
		response.Err(w, http.StatusUnauthorized, "UNAUTHENTICATED", "No authenticated session", requestID)
		return
	}
	response.Success(w, http.StatusOK, toPrincipalResponse(p), requestID)
}

// GetActor handles GET /session/actor.
func (h *SessionHandler) GetActor(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	actor, err := h.orc.CurrentActor()
	if err != nil {
		response.Err(w, http.StatusUnauthorized, "UNAUTHENTICATED", "No authenticated session", requestID)
		return
	}
	response.Success(w, http.StatusOK, actorResponse{
		PrincipalID: actor.PrincipalID,
		Email:       actor.Email,
		Emulated:    actor.Emulated,
	}, requestID)
}

// HasRole handles GET /session/roles/{role}.
func (h *SessionHandler) HasRole(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	role, ok := roles.Parse(chi.URLParam(r, "role"))
	if !ok {
		response.Err(w, http.StatusBadRequest, "INVALID_ROLE", "Unknown role", requestID)
		return
	}
	response.Success(w, http.StatusOK, map[string]any{
		"role":    string(role),
		"granted": h.orc.HasRole(role),
	}, requestID)
}

// SignIn handles POST /session/signin.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Credential == "" {
		response.Err(w, http.StatusBadRequest, "INVALID_REQUEST", "A credential is required", requestID)
		return
	}

	p, err := h.orc.SignIn(r.Context(), session.SignInRequest{
		RawCredential: req.Credential,
		EntrySurface:  req.EntrySurface,
	})
	switch {
	case errors.Is(err, session.ErrBlockedIdentity):
		response.Err(w, http.StatusForbidden, "BLOCKED", "This account cannot sign in", requestID)
	case errors.Is(err, session.ErrUnverifiedEmail):
		response.Err(w, http.StatusForbidden, "UNVERIFIED_EMAIL", "Email address must be verified before signing in", requestID)
	case errors.Is(err, session.ErrSignInSuperseded):
		response.Err(w, http.StatusConflict, "SUPERSEDED", "A newer credential event arrived during sign-in", requestID)
	case err != nil:
		response.Err(w, http.StatusBadRequest, "INVALID_CREDENTIAL", "The credential could not be validated", requestID)
	default:
		response.Success(w, http.StatusCreated, toPrincipalResponse(p), requestID)
	}
}

// SignOut handles POST /session/signout.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.orc.SignOut(r.Context(), "explicit sign-out")
	response.NoContent(w)
}

// Refresh handles POST /session/refresh.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	err := h.orc.RefreshIfNeeded(r.Context())
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		response.Err(w, http.StatusUnauthorized, "UNAUTHENTICATED", "No authenticated session", requestID)
	case err != nil:
		// The session is still alive; the renewal is retried on the
		// next activity signal.
		response.Err(w, http.StatusBadGateway, "RENEWAL_FAILED", "Credential renewal failed", requestID)
	default:
		response.NoContent(w)
	}
}

// Activity handles POST /session/activity.
func (h *SessionHandler) Activity(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		response.Err(w, http.StatusBadRequest, "INVALID_REQUEST", "An event type is required", requestID)
		return
	}

	err := h.orc.RecordActivity(r.Context(), session.ActivityEvent{
		Type:        req.Type,
		ContextData: req.ContextData,
	})
	if errors.Is(err, session.ErrNotAuthenticated) {
		response.Err(w, http.StatusUnauthorized, "UNAUTHENTICATED", "No authenticated session", requestID)
		return
	}
	if err != nil {
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Recording activity failed", requestID)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Foreground handles POST /session/foreground, the visibility signal.
func (h *SessionHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	h.orc.Foreground()
	response.NoContent(w)
}

// Remaining handles GET /session/remaining.
func (h *SessionHandler) Remaining(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	remaining := h.orc.RemainingSessionTime()
	response.Success(w, http.StatusOK, map[string]any{
		"seconds": int64(remaining.Seconds()),
	}, requestID)
}

// StartEmulation handles POST /session/emulation.
func (h *SessionHandler) StartEmulation(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req emulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		response.Err(w, http.StatusBadRequest, "INVALID_REQUEST", "A target email is required", requestID)
		return
	}

	err := h.orc.StartEmulation(session.EmulatedIdentity{
		Email:   req.Email,
		Profile: req.Profile,
	})
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		response.Err(w, http.StatusUnauthorized, "UNAUTHENTICATED", "No authenticated session", requestID)
	case errors.Is(err, session.ErrEmulationForbidden):
		response.Err(w, http.StatusForbidden, "FORBIDDEN", "Emulation requires the staff and admin roles", requestID)
	case err != nil:
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Starting emulation failed", requestID)
	default:
		response.Success(w, http.StatusCreated, map[string]any{"emulating": req.Email}, requestID)
	}
}

// StopEmulation handles DELETE /session/emulation.
func (h *SessionHandler) StopEmulation(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	if err := h.orc.StopEmulation(); err != nil {
		response.Err(w, http.StatusConflict, "NOT_EMULATING", "No emulation in progress", requestID)
		return
	}
	response.NoContent(w)
}
