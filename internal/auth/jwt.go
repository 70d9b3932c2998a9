package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload written by the login service.
type Claims struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver reads an HMAC-signed token from a cookie or a bearer header.
type JWTResolver struct {
	cookieName string
	secret     []byte
}

func NewJWTResolver(cookieName string, secret []byte) *JWTResolver {
	return &JWTResolver{cookieName: cookieName, secret: secret}
}

func (j *JWTResolver) ResolveUser(r *http.Request) (*state.Identity, error) {
	tokenString := j.tokenFrom(r)
	if tokenString == "" {
		return nil, nil
	}

	// Parse and validate the JWT token with HMAC signing
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidSession)
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return &state.Identity{ID: claims.Subject, Name: name, AvatarURL: claims.AvatarURL}, nil
}

func (j *JWTResolver) tokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(j.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// IssueToken signs a session token for user. The login service and tests use it.
func IssueToken(secret []byte, user state.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
