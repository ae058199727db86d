package secrets

import (
	"net/http"
)

// HandleRegister creates a local identity and logs it in straight away
func (a *WebApp) HandleRegister(w http.ResponseWriter, r *http.Request) {
	fields, err := parseFields(w, r, a.UsernameField, a.PasswordField)
	if err != nil {
		a.handleError(invalidInput(ErrCodeMissingField, err.Error(), ""), a.RegisterURL, w, r)
		return
	}

	identity, err := a.Service.Register(r.Context(), fields[a.UsernameField], fields[a.PasswordField])
	if err != nil {
		a.Logger.Info("registration rejected", "err", err)
		a.handleError(err, a.RegisterURL, w, r)
		return
	}

	token, err := a.Service.Sessions.Establish(r.Context(), identity.ID, a.sessionToken(r))
	if err != nil {
		a.handleError(err, a.LoginURL, w, r)
		return
	}

	a.setSessionCookie(w, token)
	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "token": token, "identity": identity})
		return
	}
	http.Redirect(w, r, a.SuccessURL, http.StatusFound)
}
