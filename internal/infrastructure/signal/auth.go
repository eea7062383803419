package signal

import (
	"errors"
	"time"

	"peerlink/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the JWT claim set the signalling server expects on dial.
type Claims struct {
	MemberID domain.MemberID `json:"member_id"`
	jwt.RegisteredClaims
}

// TokenMinter mints short-lived HS256 tokens identifying this client to the
// signalling server.
type TokenMinter struct {
	secret   []byte
	ttl      time.Duration
	memberID domain.MemberID
}

func NewTokenMinter(secret string, ttl time.Duration, memberID domain.MemberID) *TokenMinter {
	return &TokenMinter{secret: []byte(secret), ttl: ttl, memberID: memberID}
}

// Mint issues a fresh token. Called before every dial so reconnects never
// reuse an expired token.
func (m *TokenMinter) Mint() (string, error) {
	now := time.Now()
	claims := &Claims{
		MemberID: m.memberID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and checks a token, returning its claims. Used by tests
// and by deployments where the client verifies server-issued tokens.
func (m *TokenMinter) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
