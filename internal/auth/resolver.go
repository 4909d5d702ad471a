package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is the authenticated caller
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
}

// Resolver resolves the caller of an HTTP request
type Resolver interface {
	FromRequest(r *http.Request) (User, error)
}

// Claims are the JWT claims issued to platform users
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 bearer tokens
type JWTResolver struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewJWTResolver(secret, issuer string) *JWTResolver {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTResolver{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// FromRequest reads the token from the Authorization header, or from the
// access_token query parameter for websocket upgrades.
func (r *JWTResolver) FromRequest(req *http.Request) (User, error) {
	token := bearerToken(req)
	if token == "" {
		return User{}, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return r.Parse(token)
}

// Parse validates a raw token and returns its user
func (r *JWTResolver) Parse(raw string) (User, error) {
	var claims Claims
	_, err := r.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	})
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return User{}, fmt.Errorf("%w: token has no subject or tenant", ErrUnauthorized)
	}

	role := Role(claims.Role)
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
	case "":
		role = RoleMember
	default:
		return User{}, fmt.Errorf("%w: unknown role %q", ErrUnauthorized, claims.Role)
	}

	return User{ID: claims.Subject, TenantID: claims.TenantID, Role: role}, nil
}

// Issue signs a token for user valid for ttl
func (r *JWTResolver) Issue(user User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: user.TenantID,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return req.URL.Query().Get("access_token")
}
