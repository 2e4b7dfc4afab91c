package models

// ServerConfig holds the HTTP listener settings for the statistics API.
type ServerConfig struct {
	// Port the Fiber app listens on, without the leading colon.
	Port string `json:"port,omitzero" yaml:"port"`
	// AllowedOrigins is passed verbatim to the CORS middleware.
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	// Environment toggles production behavior (error detail hiding, pprof).
	Environment string `json:"environment,omitzero" yaml:"environment"`
	LogLevel    string `json:"log_level,omitzero" yaml:"log_level"`
}

// ListenAddress returns the ":port" address for the listener, defaulting to
// :8080 when no port is configured.
func (c ServerConfig) ListenAddress() string {
	if c.Port == "" {
		return ":8080"
	}
	return ":" + c.Port
}
