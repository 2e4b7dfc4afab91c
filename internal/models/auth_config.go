package models

// AuthConfig configures service-token authentication for internal callers.
// Tokens are HS256 JWTs signed with the shared secret.
type AuthConfig struct {
	Enabled       bool     `json:"enabled,omitzero" yaml:"enabled"`
	JWTSecret     string   `json:"jwt_secret,omitzero" yaml:"jwt_secret"`
	WebhookSecret string   `json:"webhook_secret,omitzero" yaml:"webhook_secret"`
	SkipPaths     []string `json:"skip_paths,omitzero" yaml:"skip_paths,omitempty"`
}
