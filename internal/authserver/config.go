package authserver

import "time"

const defaultIssuer = "sessionkit-auth"

// ServerConfig configures token issuance and the optional cross-origin surface.
type ServerConfig struct {
	SigningKey        []byte
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	GoogleWebClientID string
	AllowedOrigins    []string
}

func (configuration ServerConfig) validate() error {
	if len(configuration.SigningKey) == 0 {
		return ErrMissingSigningKey
	}
	if configuration.AccessTTL <= 0 {
		return ErrInvalidAccessTTL
	}
	if configuration.RefreshTTL <= 0 {
		return ErrInvalidRefreshTTL
	}
	return nil
}

func (configuration ServerConfig) issuer() string {
	if configuration.Issuer == "" {
		return defaultIssuer
	}
	return configuration.Issuer
}
