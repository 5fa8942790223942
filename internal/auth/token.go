// Package auth verifies the signed tokens that bind a websocket connection
// to a session and a role. Token issuance normally happens in the content
// platform; Issue exists for the host API and for tests.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role distinguishes the session owner from players.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Claims is the verified content of a connection token.
type Claims struct {
	SubjectID string
	SessionID string
	Role      Role
	ExpiresAt time.Time
}

// TokenVerifier validates a connection token and extracts its claims.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// ErrInvalidToken is returned for expired, malformed, or badly signed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// JWT signs and verifies HS256 connection tokens.
type JWT struct {
	secret []byte
	ttl    time.Duration
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWT{secret: []byte(secret), ttl: ttl}
}

// Issue creates a token binding subject to a session with a role.
func (j *JWT) Issue(subjectID, sessionID string, role Role) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subjectID,
		"sid":  sessionID,
		"role": string(role),
		"exp":  now.Add(j.ttl).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// Verify parses and validates a token string.
func (j *JWT) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	sid, _ := claims["sid"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || sid == "" {
		return Claims{}, ErrInvalidToken
	}
	if role != string(RoleHost) && role != string(RolePlayer) {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{SubjectID: sub, SessionID: sid, Role: Role(role)}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
