package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/promptarchitect/server/internal/config"
)

const (
	testSecret  = "super-secret-jwt-token-with-at-least-32-characters"
	testSubject = "7f1c2d3e-4b5a-4c6d-8e9f-0a1b2c3d4e5f"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newSecretVerifier(t *testing.T) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(context.Background(), config.AuthConfig{JWTSecret: testSecret, Audience: "authenticated"})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	return verifier
}

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tokenString
}

func userClaims(sub string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":   sub,
		"aud":   "authenticated",
		"email": "user@example.com",
		"role":  "authenticated",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	}
}

func newProtectedRouter(verifier TokenVerifier) *gin.Engine {
	router := gin.New()
	router.Use(Middleware(verifier))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "email": UserEmail(c)})
	})
	return router
}

func serve(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestNewVerifierRequiresKeys(t *testing.T) {
	_, err := NewVerifier(context.Background(), config.AuthConfig{})
	if !errors.Is(err, config.ErrMissingAuthConfig) {
		t.Fatalf("expected ErrMissingAuthConfig, got %v", err)
	}
}

func TestMiddlewareMissingToken(t *testing.T) {
	resp := serve(newProtectedRouter(newSecretVerifier(t)), "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	resp := serve(newProtectedRouter(newSecretVerifier(t)), "Token abc")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareNilVerifier(t *testing.T) {
	resp := serve(newProtectedRouter(nil), "Bearer abc")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareValidSecretToken(t *testing.T) {
	router := newProtectedRouter(newSecretVerifier(t))
	resp := serve(router, "Bearer "+signHS256(t, userClaims(testSubject)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["user_id"] != testSubject {
		t.Fatalf("expected user id %s, got %q", testSubject, body["user_id"])
	}
	if body["email"] != "user@example.com" {
		t.Fatalf("expected email, got %q", body["email"])
	}
}

func TestVerifyRejectsNonUUIDSubject(t *testing.T) {
	verifier := newSecretVerifier(t)
	_, err := verifier.Verify(signHS256(t, userClaims("user-123")))
	if !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestVerifyRejectsExpiredAndWrongAudience(t *testing.T) {
	verifier := newSecretVerifier(t)

	expired := userClaims(testSubject)
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	if _, err := verifier.Verify(signHS256(t, expired)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	wrongAudience := userClaims(testSubject)
	wrongAudience["aud"] = "someone-else"
	if _, err := verifier.Verify(signHS256(t, wrongAudience)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong audience, got %v", err)
	}

	noExpiry := userClaims(testSubject)
	delete(noExpiry, "exp")
	if _, err := verifier.Verify(signHS256(t, noExpiry)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken without exp, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier := newSecretVerifier(t)
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, userClaims(testSubject)).SignedString([]byte("another-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := verifier.Verify(tokenString); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMiddlewareJWKSToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	verifier, err := NewVerifier(ctx, config.AuthConfig{JWKSURL: server.URL, Issuer: "https://auth.example.com/auth/v1"})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	claims := userClaims(testSubject)
	claims["iss"] = "https://auth.example.com/auth/v1"
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	tokenString, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	router := newProtectedRouter(verifier)
	if resp := serve(router, "Bearer "+tokenString); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// HS256 tokens are refused when no shared secret is configured.
	if resp := serve(router, "Bearer "+signHS256(t, claims)); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for HS256 token, got %d", resp.Code)
	}
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	return jwksPayload{Keys: []jwk{{Kty: "RSA", Kid: kid, Use: "sig", Alg: "RS256", N: n, E: e}}}
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := extractBearerToken("bearer abc")
	if !ok || token != "abc" {
		t.Fatalf("expected token")
	}
	if _, ok := extractBearerToken("Bearer "); ok {
		t.Fatalf("expected empty token to fail")
	}
	if _, ok := extractBearerToken("Basic abc"); ok {
		t.Fatalf("expected non-bearer scheme to fail")
	}
}
