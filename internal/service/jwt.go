package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/model"
)

// Token type claim values
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const minSecretLength = 32

// weakSecrets are rejected at startup no matter their length
var weakSecrets = map[string]struct{}{
	"secret":                                  {},
	"changeme":                                {},
	"change_me_in_production":                 {},
	"default_secret_key_change_in_production": {},
	"jwt_secret":                              {},
	"jwt_secret_key":                          {},
	"supersecret":                             {},
	"password":                                {},
	"0000000000000000000000000000000000000000": {},
}

// Claims is the signed payload carried by both token types. The family id
// links every refresh token descended from one login.
type Claims struct {
	Email     string     `json:"email,omitempty"`
	Role      model.Role `json:"role,omitempty"`
	TokenType string     `json:"type"`
	FamilyID  string     `json:"family_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies compact HS256 tokens
type JWTService struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTService validates the signing secret before accepting it: short or
// known-weak secrets fail startup instead of shipping a forgeable token.
func NewJWTService(secretKey string, accessTTL, refreshTTL time.Duration) (*JWTService, error) {
	if len(secretKey) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", minSecretLength, len(secretKey))
	}
	if _, weak := weakSecrets[secretKey]; weak {
		return nil, fmt.Errorf("jwt secret matches a known-weak default")
	}
	return &JWTService{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL reports the configured access token lifetime
func (s *JWTService) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL reports the configured refresh token lifetime
func (s *JWTService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// CreateAccessToken mints a short-lived token carrying identity and role
func (s *JWTService) CreateAccessToken(user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:     user.Email,
		Role:      user.Role,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// CreateRefreshToken mints a refresh token. A fresh family id is generated
// when none is supplied (new login); rotation passes the existing one.
func (s *JWTService) CreateRefreshToken(userID uuid.UUID, familyID string) (string, *Claims, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}

	now := time.Now()
	claims := Claims{
		TokenType: TokenTypeRefresh,
		FamilyID:  familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// VerifyToken validates signature and expiry atomically and returns the
// claims. There is no decode-without-verify path.
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}

	return claims, nil
}

// VerifyTokenOfType validates the token and additionally checks its type
// claim, so a refresh token can never pass where an access token is expected.
func (s *JWTService) VerifyTokenOfType(tokenString, tokenType string) (*Claims, error) {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, apperrors.ErrWrongTokenType
	}
	return claims, nil
}

// SubjectID parses the subject claim into the user id
func (c *Claims) SubjectID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}
