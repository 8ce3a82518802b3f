package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"slidecast/internal/auth"
	"slidecast/internal/storage"
)

const minPasswordLength = 6

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validateSignup(req signupRequest) map[string]string {
	fields := make(map[string]string)
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if len(req.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = "must not be empty"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}

	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if fields := validateSignup(req); fields != nil {
		writeValidationError(w, fields)
		return
	}

	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) || errors.Is(err, storage.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, err)
			return
		}
		h.Logger.Error("signup create user failed", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to create account"))
		return
	}

	h.metrics().ObserveAuthEvent("signup")
	writeJSON(w, http.StatusCreated, map[string]string{
		"userId":   user.ID,
		"username": user.Username,
	})
}

func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}

	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.Store.AuthenticateUser(req.Email, req.Password)
	if err != nil {
		h.metrics().ObserveAuthEvent("signin_failure")
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			writeError(w, http.StatusUnauthorized, errors.New("unknown account"))
		case errors.Is(err, storage.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, errors.New("incorrect password"))
		default:
			h.Logger.Error("signin failed", "email", req.Email, "error", err)
			writeError(w, http.StatusInternalServerError, errors.New("unable to sign in"))
		}
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		h.Logger.Error("token issue failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to sign in"))
		return
	}

	h.metrics().ObserveAuthEvent("signin_success")
	h.setAuthCookie(w, r, token)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":  token,
		"userId": user.ID,
	})
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.DefaultTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}
