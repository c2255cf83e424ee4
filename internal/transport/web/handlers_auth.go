package web

import (
	"errors"
	"net/http"

	dErrors "storefront/pkg/domain-errors"

	"storefront/internal/session/models"
	"storefront/internal/transport/httputil"
)

func (h *Handler) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Snapshot().Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginTmpl.Execute(w, formData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if err := h.sessions.Login(r.Context(), email, password); err != nil {
		h.logger.InfoContext(r.Context(), "login rejected", "email", email)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(httputil.CodeToHTTPStatus(errCode(err)))
		// The backend's own message goes to the form verbatim.
		_ = loginTmpl.Execute(w, formData{Error: dErrors.Message(err), Email: email})
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Snapshot().Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = signupTmpl.Execute(w, formData{})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	name := r.PostFormValue("name")
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	role, err := models.ParseRole(r.PostFormValue("role"))
	if err != nil {
		role = models.RoleCustomer
	}

	if err := h.sessions.Signup(r.Context(), name, email, password, role); err != nil {
		h.logger.InfoContext(r.Context(), "signup rejected", "email", email)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(httputil.CodeToHTTPStatus(errCode(err)))
		_ = signupTmpl.Execute(w, formData{Error: dErrors.Message(err), Name: name, Email: email})
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "logout", "error", err)
	}
	http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
}

// errCode pulls the domain code out of err, defaulting to internal.
func errCode(err error) dErrors.Code {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return dErrors.CodeInternal
}
