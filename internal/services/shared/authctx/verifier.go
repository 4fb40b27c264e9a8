// Package authctx resolves bearer tokens into tenant-scoped caller identities.
package authctx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/firmdesk/firmdesk/internal/platform/requestctx"
)

// Capability names understood by the engine. The identity provider decides
// which capabilities a role grants; the engine only checks names.
const (
	CapabilityManageTemplates = "manage-templates"
	CapabilityAdmin           = "admin"
)

// Verifier validates an access token and resolves the caller identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (requestctx.Identity, error)
}

// accessClaims is the internal claims type used for JWT parsing.
type accessClaims struct {
	jwt.RegisteredClaims
	UserID       string   `json:"user_id"`
	TenantID     string   `json:"tenant_id"`
	Capabilities []string `json:"capabilities"`
}

// JWTVerifier validates HS256 access tokens issued by the platform identity
// service.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewJWTVerifier creates a verifier for the given signing secret.
// Issuer and audience checks are skipped when the corresponding value is empty.
func NewJWTVerifier(secret []byte, issuer, audience string, now func() time.Time) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &JWTVerifier{
		secret:   secret,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		now:      now,
	}, nil
}

// Verify parses and validates token, returning the embedded identity.
func (v *JWTVerifier) Verify(_ context.Context, token string) (requestctx.Identity, error) {
	if v == nil {
		return requestctx.Identity{}, fmt.Errorf("verifier is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return requestctx.Identity{}, fmt.Errorf("token is required")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	claims := &accessClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, options...); err != nil {
		return requestctx.Identity{}, fmt.Errorf("parse access token: %w", err)
	}

	userID := strings.TrimSpace(claims.UserID)
	tenantID := strings.TrimSpace(claims.TenantID)
	if userID == "" {
		return requestctx.Identity{}, fmt.Errorf("access token has no user id")
	}
	if tenantID == "" {
		return requestctx.Identity{}, fmt.Errorf("access token has no tenant id")
	}

	return requestctx.Identity{
		UserID:       userID,
		TenantID:     tenantID,
		Capabilities: claims.Capabilities,
	}, nil
}
