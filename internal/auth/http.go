// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"github.com/linkrelay/linkrelay/internal/domain"
	"github.com/linkrelay/linkrelay/internal/logging"
	"github.com/linkrelay/linkrelay/internal/metrics"
	"github.com/linkrelay/linkrelay/internal/store"
	"github.com/linkrelay/linkrelay/internal/validation"
)

// Handler serves the login surface: profile discovery and token issue.
type Handler struct {
	store      store.PermissionStore
	jwt        *JWTManager
	minVersion int

	rateLimit  int
	rateWindow time.Duration
}

// NewHandler creates the auth HTTP handler.
func NewHandler(st store.PermissionStore, jwt *JWTManager, minVersion, rateLimit int, rateWindow time.Duration) *Handler {
	return &Handler{
		store:      st,
		jwt:        jwt,
		minVersion: minVersion,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
	}
}

// Routes mounts the auth endpoints with a per-IP rate limit. Secrets
// are low-entropy user input; brute force has to be throttled here.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(h.rateLimit, h.rateWindow))
	r.Post("/profiles", h.profiles)
	r.Post("/login", h.login)
	return r
}

type profilesRequest struct {
	Secret  string `json:"secret" validate:"required"`
	Version int    `json:"version" validate:"required"`
}

type profilesResponse struct {
	Identities []domain.Identity `json:"identities"`
}

type loginRequest struct {
	Secret   string          `json:"secret" validate:"required"`
	Identity domain.Identity `json:"identity" validate:"required,friendcode"`
	Version  int             `json:"version" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type errorBody struct {
	Error string `json:"error"`
}

// profiles lists the identities a secret unlocks, so the client can
// offer a character picker before logging in.
func (h *Handler) profiles(w http.ResponseWriter, r *http.Request) {
	var req profilesRequest
	if !h.decode(w, r, &req, "profiles") {
		return
	}
	if !h.versionOK(w, req.Version, "profiles") {
		return
	}

	ids, err := h.store.AuthenticateUser(r.Context(), req.Secret)
	if err != nil {
		logging.Err(err).Msg("profile lookup failed")
		metrics.AuthAttempts.WithLabelValues("profiles", "error").Inc()
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "try again later"})
		return
	}
	if len(ids) == 0 {
		metrics.AuthAttempts.WithLabelValues("profiles", "denied").Inc()
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unknown secret"})
		return
	}

	metrics.AuthAttempts.WithLabelValues("profiles", "success").Inc()
	writeJSON(w, http.StatusOK, profilesResponse{Identities: ids})
}

// login verifies secret ownership of one identity and issues a token.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req, "login") {
		return
	}
	if !h.versionOK(w, req.Version, "login") {
		return
	}

	ok, err := h.store.LoginUser(r.Context(), req.Secret, req.Identity)
	if err != nil {
		logging.Err(err).Msg("login lookup failed")
		metrics.AuthAttempts.WithLabelValues("login", "error").Inc()
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "try again later"})
		return
	}
	if !ok {
		metrics.AuthAttempts.WithLabelValues("login", "denied").Inc()
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}

	token, err := h.jwt.Issue(req.Identity)
	if err != nil {
		logging.Err(err).Msg("token issue failed")
		metrics.AuthAttempts.WithLabelValues("login", "error").Inc()
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "try again later"})
		return
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwt.ttl),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any, endpoint string) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		metrics.AuthAttempts.WithLabelValues(endpoint, "bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request"})
		return false
	}
	if err := validation.ValidateStruct(into); err != nil {
		metrics.AuthAttempts.WithLabelValues(endpoint, "bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) versionOK(w http.ResponseWriter, version int, endpoint string) bool {
	if version >= h.minVersion {
		return true
	}
	metrics.AuthAttempts.WithLabelValues(endpoint, "version_mismatch").Inc()
	writeJSON(w, http.StatusUpgradeRequired, errorBody{Error: "client version too old"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Err(err).Msg("response encoding failed")
	}
}
