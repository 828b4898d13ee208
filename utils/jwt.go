package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"funnelcrm/models"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID       uint        `json:"user_id"`
	Role         models.Role `json:"role"`
	TokenVersion int         `json:"token_version"`
	Type         string      `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenManager signs and verifies HS256 session tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (tm *TokenManager) AccessTTL() time.Duration  { return tm.accessTTL }
func (tm *TokenManager) RefreshTTL() time.Duration { return tm.refreshTTL }

func (tm *TokenManager) GenerateTokens(user *models.User) (TokenPair, error) {
	now := tm.now()
	pair := TokenPair{
		AccessExpiresAt:  now.Add(tm.accessTTL),
		RefreshExpiresAt: now.Add(tm.refreshTTL),
	}

	var err error
	pair.AccessToken, err = tm.sign(user, TokenAccess, now, pair.AccessExpiresAt)
	if err != nil {
		return TokenPair{}, err
	}
	pair.RefreshToken, err = tm.sign(user, TokenRefresh, now, pair.RefreshExpiresAt)
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (tm *TokenManager) sign(user *models.User, typ string, issued, expires time.Time) (string, error) {
	claims := &Claims{
		UserID:       user.ID,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		Type:         typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(issued),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

// ParseToken verifies signature, expiry and token type.
func (tm *TokenManager) ParseToken(tokenString, typ string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != typ {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
