package oauth2

import (
	"golang.org/x/oauth2/google"
)

const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// NewGoogleProvider asks Google for the basic profile scope only. The
// stable "sub" claim becomes the profile id.
func NewGoogleProvider(clientId, clientSecret, callbackUrl string, handleProfile HandleProfileFunc) *Provider {
	out := NewProvider("google", clientId, clientSecret, callbackUrl, google.Endpoint, "profile")
	out.UserInfoURL = GoogleUserInfoURL
	out.HandleProfile = handleProfile
	return out
}
