package api

import (
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/reyadatime/reyadatime/internal/auth"
)

func authenticator(deps Dependencies, w http.ResponseWriter, r *http.Request) (Authenticator, bool) {
	if deps.Auth == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AUTH_NOT_CONFIGURED", "auth dependency is not configured", false, nil)
		return nil, false
	}
	return deps.Auth(r.Header.Get("Accept-Language")), true
}

func handleSignIn(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	client, ok := authenticator(deps, w, r)
	if !ok {
		return
	}
	var creds auth.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}
	resp, err := client.SignInWithPassword(r.Context(), creds)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func handleSignUp(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	client, ok := authenticator(deps, w, r)
	if !ok {
		return
	}
	var input auth.SignUpInput
	if !decodeJSON(w, r, &input) {
		return
	}
	input.Email = strings.TrimSpace(input.Email)
	if !govalidator.IsEmail(input.Email) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EMAIL", "a valid email address is required", false, nil)
		return
	}
	if len(input.Password) < 8 {
		writeError(r.Context(), w, http.StatusBadRequest, "WEAK_PASSWORD", "password must be at least 8 characters", false, nil)
		return
	}
	resp, err := client.SignUp(r.Context(), input)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
