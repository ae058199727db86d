package secrets

import (
	"net/http"
)

// secretView is what the public listing shows of an identity
type secretView struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// HandleMe returns the identity of the current session
func (a *WebApp) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, err := a.Service.CurrentIdentity(r.Context(), a.sessionToken(r))
	if err != nil {
		a.handleError(err, a.LoginURL, w, r)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// HandleSubmitPage answers the submit page request for an authenticated
// session. It sits behind AccessGate.Require.
func (a *WebApp) HandleSubmitPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"identity_id":   IdentityIDFromContext(r.Context()),
	})
}

// HandleSubmit stores the posted secret for the current session
func (a *WebApp) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	fields, err := parseFields(w, r, a.SecretField)
	if err != nil {
		a.handleError(invalidInput(ErrCodeMissingField, err.Error(), a.SecretField), a.SuccessURL, w, r)
		return
	}

	if err := a.Service.SubmitProtectedContent(r.Context(), a.sessionToken(r), fields[a.SecretField]); err != nil {
		a.handleError(err, a.LoginURL, w, r)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	http.Redirect(w, r, a.SuccessURL, http.StatusFound)
}

// HandleSecrets lists every submitted secret. It is public.
func (a *WebApp) HandleSecrets(w http.ResponseWriter, r *http.Request) {
	identities, err := a.Service.ListIdentitiesWithProtectedContent(r.Context())
	if err != nil {
		a.handleError(err, a.LogoutURL, w, r)
		return
	}
	out := make([]secretView, 0, len(identities))
	for _, identity := range identities {
		if identity.HasSecret() {
			out = append(out, secretView{ID: identity.ID, Secret: *identity.Secret})
		}
	}
	writeJSON(w, http.StatusOK, out)
}
