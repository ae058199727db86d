package secrets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HandleLogin verifies a username/password and starts a session
func (a *WebApp) HandleLogin(w http.ResponseWriter, r *http.Request) {
	fields, err := parseFields(w, r, a.UsernameField, a.PasswordField)
	if err != nil {
		a.handleError(invalidInput(ErrCodeMissingField, err.Error(), ""), a.LoginURL, w, r)
		return
	}

	token, err := a.Service.Login(r.Context(), fields[a.UsernameField], fields[a.PasswordField], a.sessionToken(r))
	if err != nil {
		a.handleError(err, a.LoginURL, w, r)
		return
	}

	a.setSessionCookie(w, token)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token})
		return
	}
	http.Redirect(w, r, a.SuccessURL, http.StatusFound)
}

// HandleLogout ends the current session, if any, and clears the cookie
func (a *WebApp) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Service.Logout(r.Context(), a.sessionToken(r)); err != nil {
		a.Logger.Error("error ending session", "err", err)
	}
	a.setSessionCookie(w, "")

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	http.Redirect(w, r, a.LogoutURL, http.StatusFound)
}

// handleError answers err as JSON for API clients and redirects browsers to
// redirectURL. Server errors are logged and reported generically either way.
func (a *WebApp) handleError(err error, redirectURL string, w http.ResponseWriter, r *http.Request) {
	authErr, status := asAuthError(err)
	if status == http.StatusInternalServerError {
		a.Logger.Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, authErr, status)
		return
	}
	if wantsJSON(r) {
		writeError(w, authErr, status)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// maxBodyBytes caps login, registration and submit bodies
const maxBodyBytes = 16 << 10

// parseFields reads the named fields from a form or JSON body of at most
// maxBodyBytes
func parseFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	out := make(map[string]string, len(names))
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return nil, fmt.Errorf("invalid post body")
		}
		for _, name := range names {
			if v, ok := data[name].(string); ok {
				out[name] = v
			}
		}
		return out, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("error parsing form")
	}
	for _, name := range names {
		out[name] = r.PostFormValue(name)
	}
	return out, nil
}
