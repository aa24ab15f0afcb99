// Package auth resolves request identities from signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gigroom/gigroom/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Principal is the authenticated caller.
type Principal struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && p.Role == role
}

// Claims are the JWT claims gigroom issues and accepts.
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// Authenticator verifies tokens and loads the matching user row.
type Authenticator struct {
	db     *gorm.DB
	secret []byte
	now    func() time.Time
}

// New creates an Authenticator for the given signing secret.
func New(db *gorm.DB, secret string) *Authenticator {
	return &Authenticator{db: db, secret: []byte(secret), now: time.Now}
}

// Issue signs a token for userID valid for ttl.
func (a *Authenticator) Issue(userID uint, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   fmt.Sprintf("%d", userID),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Authenticate verifies raw and returns the principal it names.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: token has no user_id", ErrUnauthenticated)
	}

	var user models.User
	if err := a.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d not found", ErrUnauthenticated, claims.UserID)
		}
		return nil, fmt.Errorf("auth: load user %d: %w", claims.UserID, err)
	}
	return &Principal{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// TokenFromRequest returns the token from the "token" query parameter or
// the Authorization bearer header, in that order.
func TokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
