// Package auth resolves the caller identity from bearer tokens issued by the
// campus identity service.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Role string

const (
	RoleStudent   Role = "student"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleCounselor, RoleAdmin:
		return true
	}
	return false
}

// Claims is the token body. Program scopes students and counselors; CounselorID
// is only set for counselor accounts.
type Claims struct {
	Role        Role   `json:"role"`
	Program     string `json:"program,omitempty"`
	CounselorID string `json:"counselor_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the resolved caller passed into domain operations.
type Identity struct {
	UserID      string
	Role        Role
	Program     string
	CounselorID string
}

func (i Identity) IsStaff() bool {
	return i.Role == RoleCounselor || i.Role == RoleAdmin
}

type Signer struct {
	secret []byte
	issuer string
}

func NewSigner(secret, issuer string) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer}
}

func (s *Signer) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:        id.Role,
		Program:     id.Program,
		CounselorID: id.CounselorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

func (v *Verifier) Verify(token string) (Identity, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return Identity{}, ErrInvalidToken
	}
	if claims.Role == RoleCounselor && claims.CounselorID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:      claims.Subject,
		Role:        claims.Role,
		Program:     claims.Program,
		CounselorID: claims.CounselorID,
	}, nil
}
