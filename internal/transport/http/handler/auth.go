package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mailverify-auth/internal/application/auth"
	"github.com/mailverify-auth/internal/domain"
	"github.com/mailverify-auth/internal/transport/http/middleware"
)

// AuthHandler handles the email verification, signup and login endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// decode fills v from the body. A malformed or empty body leaves v zeroed,
// which the service reports as missing fields.
func decode(r *http.Request, v interface{}) {
	_ = json.NewDecoder(r.Body).Decode(v)
}

func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestVerificationRequest
	decode(r, &req)
	if err := h.svc.RequestVerification(r.Context(), req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	decode(r, &req)
	if err := h.svc.VerifyCode(r.Context(), req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email verified"})
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	decode(r, &req)
	res, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	decode(r, &req)
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	acc, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{Name: acc.Name, Email: acc.Email})
}
