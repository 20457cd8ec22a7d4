package authserver

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// ErrGoogleTokenRejected indicates the Google ID token failed verification.
var ErrGoogleTokenRejected = errors.New("authserver.google.token_rejected")

// GoogleIdentity is the verified payload extracted from a Google ID token.
type GoogleIdentity struct {
	Subject     string
	Email       string
	DisplayName string
}

// GoogleTokenValidator verifies Google ID tokens against the configured
// web client id.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, googleIDToken string) (GoogleIdentity, error)
}

type googleTokenValidator struct {
	validator *idtoken.Validator
	audience  string
}

// NewGoogleTokenValidator builds a validator backed by Google's public keys.
func NewGoogleTokenValidator(ctx context.Context, audience string) (GoogleTokenValidator, error) {
	validator, validatorErr := idtoken.NewValidator(ctx)
	if validatorErr != nil {
		return nil, fmt.Errorf("authserver.google.validator_init: %w", validatorErr)
	}
	return &googleTokenValidator{validator: validator, audience: audience}, nil
}

func (google *googleTokenValidator) Validate(ctx context.Context, googleIDToken string) (GoogleIdentity, error) {
	payload, validateErr := google.validator.Validate(ctx, googleIDToken, google.audience)
	if validateErr != nil {
		return GoogleIdentity{}, fmt.Errorf("%w: %w", ErrGoogleTokenRejected, validateErr)
	}
	issuerValue, okIssuer := payload.Claims["iss"].(string)
	if !okIssuer || (issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com") {
		return GoogleIdentity{}, fmt.Errorf("%w: unexpected issuer", ErrGoogleTokenRejected)
	}
	googleSub, _ := payload.Claims["sub"].(string)
	userEmail, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	userDisplayName, _ := payload.Claims["name"].(string)
	if googleSub == "" || userEmail == "" || !emailVerified {
		return GoogleIdentity{}, fmt.Errorf("%w: unverified identity", ErrGoogleTokenRejected)
	}
	return GoogleIdentity{Subject: googleSub, Email: userEmail, DisplayName: userDisplayName}, nil
}
