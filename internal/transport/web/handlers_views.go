package web

import (
	"io"
	"net/http"

	dErrors "storefront/pkg/domain-errors"
)

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.sessions.Snapshot()
	if snap.Identity == nil {
		// The guard let us in, so the session ended between its check and
		// ours. Treat it like any other anonymous visit.
		http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = dashboardTmpl.Execute(w, snap.Identity)
}

func (h *Handler) handleVendor(w http.ResponseWriter, r *http.Request) {
	snap := h.sessions.Snapshot()
	if snap.Identity == nil {
		http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = vendorTmpl.Execute(w, snap.Identity)
}

// handleOrders fetches the caller's orders through the intercepted client and
// relays the backend's response. The interceptor handles the credential; if
// it aborts the request the visitor goes back to the login form.
func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.backendURL+"/orders", nil)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.data.Do(req)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeSessionInvalidated) {
			http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
			return
		}
		h.logger.WarnContext(r.Context(), "fetching orders", "error", err)
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	// On a 401/403 the interceptor has already cleared the credential and
	// broadcast the invalidation. Send the visitor to the entry view instead
	// of relaying the backend's rejection.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
