// Package authz resolves caller identity from an opaque bearer token and
// checks the resulting scopes against a tool's required scopes, per §4.6.
// Token verification itself is pluggable (the core never parses a vendor's
// token format); JWT and OAuth2 introspection verifiers are provided as
// the two collaborators the teacher's stack already depends on
// (golang-jwt/jwt, golang.org/x/oauth2), grounded on the teacher's
// internal/auth.AuthService.ValidateJWT.
package authz

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cortexlabs/cortexcache/internal/cortexerr"
)

// Identity is the caller identity resolved from a verified token.
type Identity struct {
	UserID string
	Scopes []string
}

// HasScope reports whether the identity carries the given scope.
func (i Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier resolves a caller identity from an opaque bearer token, per
// §6's IdentityVerifier collaborator interface.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type identityCtxKey struct{}

// WithToken attaches a raw bearer token to ctx for downstream resolution.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, token)
}

// TokenFromContext extracts the bearer token attached by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(identityCtxKey{}).(string)
	return tok, ok && tok != ""
}

// Authorizer checks requires_auth/required_scopes for a tool call,
// resolving identity through a pluggable Verifier.
type Authorizer struct {
	verifier Verifier
}

// New constructs an Authorizer backed by verifier.
func New(verifier Verifier) *Authorizer {
	return &Authorizer{verifier: verifier}
}

// Authorize resolves the caller identity from ctx (if requiresAuth) and
// checks it holds every scope in requiredScopes, per §4.6.
func (a *Authorizer) Authorize(ctx context.Context, requiresAuth bool, requiredScopes []string) (Identity, error) {
	const op = "authz.authorize"
	if !requiresAuth {
		return Identity{}, nil
	}

	token, ok := TokenFromContext(ctx)
	if !ok {
		return Identity{}, cortexerr.New(op, cortexerr.KindUnauthenticated, nil)
	}
	if a.verifier == nil {
		return Identity{}, cortexerr.New(op, cortexerr.KindUnauthenticated, nil)
	}

	identity, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return Identity{}, cortexerr.Wrap(op, cortexerr.KindUnauthenticated, err)
	}

	for _, scope := range requiredScopes {
		if !identity.HasScope(scope) {
			return Identity{}, cortexerr.New(op, cortexerr.KindUnauthorized, nil)
		}
	}
	return identity, nil
}

// JWTVerifier verifies HS256-signed JWTs carrying a user id and scope
// claims, mirroring the teacher's AuthService.ValidateJWT shape.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a JWTVerifier using secret as the HMAC key.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

type jwtClaims struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}
	return Identity{UserID: claims.UserID, Scopes: claims.Scopes}, nil
}
