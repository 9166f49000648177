package http

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ServerMetadata is the RFC 8414 authorization server metadata document.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// DiscoveryHandler serves the authorization server metadata.
type DiscoveryHandler struct {
	issuerURL string
}

// NewDiscoveryHandler creates a new DiscoveryHandler.
func NewDiscoveryHandler(issuerURL string) *DiscoveryHandler {
	return &DiscoveryHandler{
		issuerURL: strings.TrimSuffix(issuerURL, "/"),
	}
}

// Metadata handles GET /.well-known/oauth-authorization-server.
func (h *DiscoveryHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	metadata := ServerMetadata{
		Issuer:                h.issuerURL,
		AuthorizationEndpoint: h.issuerURL + "/oauth/authorize",
		TokenEndpoint:         h.issuerURL + "/oauth/token",
		IntrospectionEndpoint: h.issuerURL + "/oauth/introspect",
		RevocationEndpoint:    h.issuerURL + "/oauth/revoke",

		ScopesSupported: []string{
			"openid",
			"profile",
			"email",
		},

		ResponseTypesSupported: []string{
			"code",
		},

		ResponseModesSupported: []string{
			"query",
		},

		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
		},

		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_post",
			"none", // public clients with PKCE
		},

		CodeChallengeMethodsSupported: []string{
			"S256",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
