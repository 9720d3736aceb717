package cluster

import "net/http"

const (
	// HeaderAuthorization carries the API token on every request.
	HeaderAuthorization = "Authorization"

	// tokenScheme prefixes the token in the Authorization header.
	tokenScheme = "PVEAPIToken="
)

// addAuthHeaders sets the API token header on the request.
// The client never opens a ticket session; every call is token authenticated.
func (c *Client) addAuthHeaders(req *http.Request) error {
	if c.tokenID == "" || c.tokenSecret == "" {
		return ErrMissingAuth
	}
	req.Header.Set(HeaderAuthorization, tokenScheme+c.tokenID+"="+c.tokenSecret)
	return nil
}
