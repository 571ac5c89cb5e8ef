// Package middleware provides the HTTP middleware of the governance API:
// bearer-token authentication, rate limiting and request ids.
package middleware

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims holds the parsed claims from a validated JWT.
type JWTClaims struct {
	Subject  string
	Issuer   string
	Audience []string
	Raw      map[string]any
}

// JWTValidator validates a JWT and returns its claims.
type JWTValidator interface {
	Validate(ctx context.Context, token string) (*JWTClaims, error)
}

// OIDCValidator validates JWTs against an OIDC provider's signing keys.
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCValidator discovers the provider at issuerURL. Tokens must be issued
// by it for audience.
func NewOIDCValidator(ctx context.Context, issuerURL, audience string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	return &OIDCValidator{verifier: provider.Verifier(&oidc.Config{
		ClientID:          audience,
		SkipClientIDCheck: audience == "",
	})}, nil
}

// NewOIDCValidatorFromJWKS builds a validator from a JWKS URL without
// discovery.
func NewOIDCValidatorFromJWKS(ctx context.Context, jwksURL, issuerURL, audience string) *OIDCValidator {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	return &OIDCValidator{verifier: oidc.NewVerifier(issuerURL, keySet, &oidc.Config{
		ClientID:          audience,
		SkipClientIDCheck: audience == "",
	})}
}

// Validate verifies the token signature, issuer, audience and expiry.
func (v *OIDCValidator) Validate(ctx context.Context, token string) (*JWTClaims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &JWTClaims{
		Subject:  idToken.Subject,
		Issuer:   idToken.Issuer,
		Audience: idToken.Audience,
		Raw:      raw,
	}, nil
}

// HS256Validator validates JWTs signed with a shared secret. It is meant for
// local development and tests.
type HS256Validator struct {
	secret   []byte
	audience string
}

// NewHS256Validator creates a shared-secret validator. A non-empty audience
// must appear in the token's aud claim.
func NewHS256Validator(secret, audience string) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &HS256Validator{secret: []byte(secret), audience: audience}, nil
}

// Validate verifies an HS256 token and extracts its claims.
func (v *HS256Validator) Validate(_ context.Context, token string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	tok, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("parse claims: unsupported claim type %T", tok.Claims)
	}

	claims := &JWTClaims{Raw: map[string]any(raw)}
	claims.Subject, _ = raw.GetSubject()
	claims.Issuer, _ = raw.GetIssuer()
	if aud, err := raw.GetAudience(); err == nil && len(aud) > 0 {
		claims.Audience = []string(aud)
	}
	return claims, nil
}
