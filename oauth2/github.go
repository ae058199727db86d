package oauth2

import (
	"golang.org/x/oauth2/github"
)

const GithubUserInfoURL = "https://api.github.com/user"

// NewGithubProvider uses GitHub's numeric user id as the profile id
func NewGithubProvider(clientId, clientSecret, callbackUrl string, handleProfile HandleProfileFunc) *Provider {
	out := NewProvider("github", clientId, clientSecret, callbackUrl, github.Endpoint, "read:user")
	out.UserInfoURL = GithubUserInfoURL
	out.HandleProfile = handleProfile
	return out
}
