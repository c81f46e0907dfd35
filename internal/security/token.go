package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminTokenIssuer = "promptarchitect-admin"

// AdminClaims are the JWT claims issued to management API operators.
type AdminClaims struct {
	AdminID  uint64 `json:"admin_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs an HS256 admin token valid for expiry.
func IssueAdminToken(secret string, adminID uint64, username string, expiry time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New("security: empty jwt secret")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(expiry)
	claims := AdminClaims{
		AdminID:  adminID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminTokenIssuer,
			Subject:   strconv.FormatUint(adminID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("security: sign admin token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAdminToken validates an admin token and returns its claims.
func ParseAdminToken(secret, tokenString string) (*AdminClaims, error) {
	if secret == "" {
		return nil, errors.New("security: empty jwt secret")
	}
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(adminTokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.AdminID == 0 {
		return nil, errors.New("security: invalid admin token")
	}
	return claims, nil
}
