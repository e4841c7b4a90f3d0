// Package auth issues and verifies the bearer tokens that identify an owner
// on the control plane and the event stream.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vrsandeep/tunedl/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the owner id in the subject and the user's role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	now    func() time.Time
}

func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(secret), now: time.Now}
}

// Issue returns a signed token for user valid for ttl. A zero ttl means the
// token never expires.
func (m *Manager) Issue(user models.User, ttl time.Duration) (string, error) {
	if user.ID == "" {
		return "", errors.New("user id is required")
	}
	now := m.now()
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses token and returns the user it names.
func (m *Manager) Verify(token string) (models.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return models.User{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role := claims.Role
	if role != models.RoleAdmin {
		role = models.RoleUser
	}
	return models.User{ID: claims.Subject, Role: role}, nil
}
