// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/pkg/errutil"
)

// Response messages.
const (
	msgWelcome         = "Bienvenue"
	msgUserCreated     = "user created"
	msgEmailRegistered = "email already registered"
	msgLoggedIn        = "logged in"
	msgPasswordUpdated = "Password updated"
	msgUnauthorized    = "unauthorized"
	msgForbidden       = "forbidden"
	msgInternal        = "internal server error"
	msgTimeout         = "request timed out"
)

type handlers struct {
	svc    Service
	cookie CookieOptions
}

func (h *handlers) index(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, msgWelcome)
}

// registerUser handles POST /users.
func (h *handlers) registerUser(w http.ResponseWriter, r *http.Request) {
	form, ok := readForm(w, r, http.StatusBadRequest, "email", "password")
	if !ok {
		return
	}

	_, err := h.svc.RegisterUser(r.Context(), form["email"], form["password"])
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"email": form["email"], "message": msgUserCreated})
	case errors.Is(err, auth.ErrAlreadyExists):
		writeMessage(w, http.StatusBadRequest, msgEmailRegistered)
	default:
		h.fail(w, r, err)
	}
}

// login handles POST /sessions.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	form, ok := readForm(w, r, http.StatusUnauthorized, "email", "password")
	if !ok {
		return
	}

	if !h.svc.ValidLogin(r.Context(), form["email"], form["password"]) {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	token, ok := h.svc.CreateSession(r.Context(), form["email"])
	if !ok {
		h.fail(w, r, oops.Code("HTTP_SESSION_NOT_CREATED").Errorf("session could not be created after a valid login"))
		return
	}

	setSessionCookie(w, token, h.cookie)
	writeJSON(w, http.StatusOK, map[string]string{"email": form["email"], "message": msgLoggedIn})
}

// logout handles DELETE /sessions.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		writeMessage(w, http.StatusForbidden, msgForbidden)
		return
	}
	if err := h.svc.DestroySession(r.Context(), user.ID); err != nil {
		h.fail(w, r, err)
		return
	}

	clearSessionCookie(w, h.cookie)
	http.Redirect(w, r, "/", http.StatusFound)
}

// profile handles GET /profile.
func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(r)
	if !ok {
		writeMessage(w, http.StatusForbidden, msgForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": user.Email})
}

// resetToken handles POST /reset_password.
func (h *handlers) resetToken(w http.ResponseWriter, r *http.Request) {
	form, ok := readForm(w, r, http.StatusForbidden, "email")
	if !ok {
		return
	}

	token, err := h.svc.GetResetToken(r.Context(), form["email"])
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"email": form["email"], "reset_token": token})
	case errors.Is(err, auth.ErrNotFound):
		writeMessage(w, http.StatusForbidden, msgForbidden)
	default:
		h.fail(w, r, err)
	}
}

// updatePassword handles PUT /reset_password.
func (h *handlers) updatePassword(w http.ResponseWriter, r *http.Request) {
	form, ok := readForm(w, r, http.StatusForbidden, "email", "reset_token", "new_password")
	if !ok {
		return
	}

	err := h.svc.UpdatePassword(r.Context(), form["reset_token"], form["new_password"])
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"email": form["email"], "message": msgPasswordUpdated})
	case errors.Is(err, auth.ErrNotFound):
		writeMessage(w, http.StatusForbidden, msgForbidden)
	default:
		h.fail(w, r, err)
	}
}

// currentUser returns the user set by the session middleware, or resolves
// the cookie itself on paths the middleware skips.
func (h *handlers) currentUser(r *http.Request) (*auth.UserRecord, bool) {
	if user, ok := UserFromContext(r.Context()); ok {
		return user, true
	}
	return h.svc.GetUserFromSession(r.Context(), sessionToken(r))
}

// fail maps an error to a response. Validation errors become 400; anything
// else is logged and becomes a generic 500.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		writeMessage(w, http.StatusBadRequest, auth.ErrInvalidEmail.Error())
	case errors.Is(err, auth.ErrEmptyPassword):
		writeMessage(w, http.StatusBadRequest, auth.ErrEmptyPassword.Error())
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeMessage(w, http.StatusBadRequest, auth.ErrPasswordTooLong.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeMessage(w, http.StatusGatewayTimeout, msgTimeout)
	default:
		errutil.LogErrorContext(r.Context(), loggerFrom(r.Context()), "request failed",
			oops.With("method", r.Method).With("path", r.URL.Path).Wrap(err))
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

// readForm parses the request form and returns the named fields. A missing
// or blank field is answered with missingStatus and ok=false; a body that
// does not parse with 400.
func readForm(w http.ResponseWriter, r *http.Request, missingStatus int, fields ...string) (map[string]string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := parseForm(r); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed form body")
		return nil, false
	}

	values := make(map[string]string, len(fields))
	var missing []string
	for _, f := range fields {
		v := r.FormValue(f)
		if strings.TrimSpace(v) == "" {
			missing = append(missing, f)
			continue
		}
		values[f] = v
	}
	if len(missing) > 0 {
		writeMessage(w, missingStatus, "missing required field: "+strings.Join(missing, ", "))
		return nil, false
	}
	return values, true
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormBytes)
	}
	return r.ParseForm()
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}
