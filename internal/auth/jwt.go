package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxTokenLen bounds the work done on attacker-supplied tokens.
const maxTokenLen = 8 * 1024

var ErrMissingClaim = errors.New("missing required claim")

// SignalingClaims are the claims a signaling token must carry. exp and iat
// are mandatory; nbf is honoured when present.
type SignalingClaims struct {
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier builds a verifier. now may be nil to use the wall clock.
func NewJWTVerifier(secret string, now func() time.Time) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}
}

// Parse verifies token and returns its claims.
func (v *JWTVerifier) Parse(token string) (*SignalingClaims, error) {
	if token == "" || len(token) > maxTokenLen {
		return nil, ErrInvalidCredentials
	}
	claims := &SignalingClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidCredentials, err)
	}
	if claims.IssuedAt == nil {
		return nil, errors.Join(ErrInvalidCredentials, ErrMissingClaim)
	}
	return claims, nil
}

func (v *JWTVerifier) Verify(token string) error {
	_, err := v.Parse(token)
	return err
}

// SignToken mints an HS256 token for subject valid for ttl. bbcatctl and
// tests use it; production tokens may come from any issuer sharing the
// secret.
func SignToken(secret, subject string, now time.Time, ttl time.Duration) (string, error) {
	claims := SignalingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
