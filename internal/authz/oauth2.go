package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Verifier validates bearer tokens via RFC 7662 token introspection,
// authenticating to the introspection endpoint with its own client
// credentials. Grounded on the teacher's SSOService's oauth2.Config-based
// client construction, adapted from an authorization-code login flow to a
// service-to-service client-credentials flow suited to backend
// introspection calls.
type OAuth2Verifier struct {
	introspectionURL string
	httpClient       *http.Client
}

// NewOAuth2Verifier constructs a verifier that calls introspectionURL
// using a client obtained via the client-credentials grant against
// tokenURL with clientID/clientSecret.
func NewOAuth2Verifier(introspectionURL, tokenURL, clientID, clientSecret string) *OAuth2Verifier {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return &OAuth2Verifier{
		introspectionURL: introspectionURL,
		httpClient:       cfg.Client(context.Background()),
	}
}

type introspectionResponse struct {
	Active bool     `json:"active"`
	Sub    string   `json:"sub"`
	Scope  string   `json:"scope"` // space-delimited, per RFC 7662
}

// Verify implements Verifier by calling the introspection endpoint.
func (v *OAuth2Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.introspectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Identity{}, fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("introspection request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Identity{}, fmt.Errorf("read introspection response: %w", err)
	}

	var ir introspectionResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return Identity{}, fmt.Errorf("parse introspection response: %w", err)
	}
	if !ir.Active {
		return Identity{}, fmt.Errorf("token is not active")
	}

	var scopes []string
	if ir.Scope != "" {
		scopes = strings.Fields(ir.Scope)
	}
	return Identity{UserID: ir.Sub, Scopes: scopes}, nil
}
