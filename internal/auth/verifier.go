// Package auth verifies end-user access tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/promptarchitect/server/internal/config"
)

const defaultLeeway = 30 * time.Second

var (
	// ErrInvalidToken reports a token that failed signature or claim validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidSubject reports a token whose sub claim is not a user UUID.
	ErrInvalidSubject = errors.New("auth: invalid subject")
)

var asymmetricMethods = []string{
	jwt.SigningMethodRS256.Name,
	jwt.SigningMethodRS384.Name,
	jwt.SigningMethodRS512.Name,
	jwt.SigningMethodES256.Name,
	jwt.SigningMethodES384.Name,
}

// Claims is the identity extracted from a verified token.
type Claims struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Verifier validates bearer tokens with a shared HS256 secret, a JWKS endpoint, or both.
type Verifier struct {
	secret []byte
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewVerifier builds a verifier from cfg. When a JWKS URL is set its keys are
// refreshed in the background until ctx is done.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.JWTSecret)
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if secret == "" && jwksURL == "" {
		return nil, config.ErrMissingAuthConfig
	}

	v := &Verifier{}
	var methods []string
	if secret != "" {
		v.secret = []byte(secret)
		methods = append(methods, jwt.SigningMethodHS256.Name)
	}
	if jwksURL != "" {
		if ctx == nil {
			ctx = context.Background()
		}
		jwks, errJWKS := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if errJWKS != nil {
			return nil, fmt.Errorf("auth: init jwks keyfunc: %w", errJWKS)
		}
		v.jwks = jwks
		methods = append(methods, asymmetricMethods...)
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods(methods),
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

func (v *Verifier) keyFor(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, fmt.Errorf("auth: unexpected signing method %s", token.Method.Alg())
		}
		return v.secret, nil
	}
	if v.jwks == nil {
		return nil, fmt.Errorf("auth: unexpected signing method %s", token.Method.Alg())
	}
	return v.jwks.Keyfunc(token)
}

// Verify parses tokenString and returns its claims. The sub claim must be a UUID.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if v == nil || v.parser == nil {
		return nil, fmt.Errorf("auth: verifier not initialized")
	}
	token, errParse := v.parser.Parse(tokenString, v.keyFor)
	if errParse != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, errParse)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := mapClaims.GetSubject()
	parsed, errUUID := uuid.Parse(strings.TrimSpace(subject))
	if errUUID != nil {
		return nil, ErrInvalidSubject
	}

	claims := &Claims{
		UserID: parsed.String(),
		Email:  readString(mapClaims, "email"),
		Role:   readString(mapClaims, "role"),
	}
	if exp, errExp := mapClaims.GetExpirationTime(); errExp == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
