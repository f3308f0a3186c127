package auth

import (
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// SubjectOperator is the only subject type accepted by the operator API.
const SubjectOperator = "operator"

const tokenIssuer = "helpdesk-bot"

// TokenManager issues and checks the HS256 tokens that guard the operator
// API. Tokens are minted offline with the bot binary; there is no login.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    time.Duration(ttlMinutes) * time.Minute,
		now:    time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Claims carries the operator identity. SubjectID mirrors the registered
// sub claim.
type Claims struct {
	SubjectID string `json:"-"`
	Subject   string `json:"subject"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for subjectID and returns it with its expiry.
func (tm *TokenManager) GenerateToken(subjectID, subject string) (string, time.Time, error) {
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies signature, issuer and expiry.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, err := tm.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.RegisteredClaims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	claims.SubjectID = claims.RegisteredClaims.Subject
	return claims, nil
}
