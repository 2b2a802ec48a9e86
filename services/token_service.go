package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pushboard/pushboard/config"
	"github.com/pushboard/pushboard/utils"
)

// Token service errors
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

// TokenService defines the interface for operator token operations
type TokenService interface {
	GenerateToken(subject string) (string, error)
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims represents the claims carried by an operator token
type TokenClaims struct {
	Subject   string    `json:"sub"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	Issuer    string    `json:"iss"`
	Audience  string    `json:"aud"`
}

// TokenServiceImpl implements TokenService with HMAC signing
type TokenServiceImpl struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
	audience  string
}

// NewTokenService creates a new token service instance
func NewTokenService(cfg *config.JWTConfig) TokenService {
	return &TokenServiceImpl{
		secretKey: []byte(cfg.SecretKey),
		ttl:       cfg.TokenTTL,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
	}
}

// GenerateToken creates a signed operator token
func (t *TokenServiceImpl) GenerateToken(subject string) (string, error) {
	now := utils.UTCNow()

	claims := jwt.MapClaims{
		"sub": subject,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
		"iss": t.issuer,
		"aud": t.audience,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature and standard claims of a token
func (t *TokenServiceImpl) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secretKey, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return mapClaimsToTokenClaims(claims)
}

func mapClaimsToTokenClaims(claims jwt.MapClaims) (*TokenClaims, error) {
	out := &TokenClaims{}

	if sub, ok := claims["sub"].(string); ok {
		out.Subject = sub
	} else {
		return nil, ErrTokenInvalid
	}
	if jti, ok := claims["jti"].(string); ok {
		out.TokenID = jti
	}
	if iss, ok := claims["iss"].(string); ok {
		out.Issuer = iss
	}
	if aud, ok := claims["aud"].(string); ok {
		out.Audience = aud
	}
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	} else {
		return nil, ErrTokenInvalid
	}

	return out, nil
}
