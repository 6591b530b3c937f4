package authUtils

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var (
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("JWT secret not configured")

	// ErrInvalidToken is returned for malformed, expired or tampered tokens.
	ErrInvalidToken = errors.New("invalid authorization token")
)

// SessionClaims is what the dashboard keeps about a logged-in user.
type SessionClaims struct {
	UserID     string
	Email      string
	Role       string
	Department string
}

// GenerateAndSetToken signs a token for the given session that expires after ttl.
func GenerateAndSetToken(secret string, ttl time.Duration, session SessionClaims) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}

	claims := jwt.MapClaims{
		"user_id": session.UserID,
		"email":   session.Email,
		"role":    session.Role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if session.Department != "" {
		claims["department"] = session.Department
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies an HS256 token and returns its session claims.
func ParseToken(secret, tokenString string) (SessionClaims, error) {
	if secret == "" {
		return SessionClaims{}, ErrMissingSecret
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return SessionClaims{}, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return SessionClaims{}, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	department, _ := claims["department"].(string)

	return SessionClaims{UserID: userID, Email: email, Role: role, Department: department}, nil
}
