package auth

import (
	"fmt"
	"time"

	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/golang-jwt/jwt/v5"
)

type operatorClaims struct {
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 operator token accepted by Middleware. Tokens
// are normally issued by the identity service; this is for local runs.
func IssueToken(cfg AuthorizationConfig, actor models.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" {
		return "", fmt.Errorf("actor id is required")
	}
	now := time.Now()
	claims := operatorClaims{
		Name:        actor.Name,
		Permissions: actor.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings(cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
