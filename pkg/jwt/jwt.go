package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptySecret   = errors.New("jwt: secret vacío")
	ErrInvalidClaims = errors.New("jwt: claims inválidos")
)

// Claims de los tokens de la API local. RNC es el emisor al que queda limitado el token.
type Claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id"`
	RNC      string `json:"rnc"`
	Role     string `json:"role"` // "emisor" | "consulta"
}

// Generate firma (HS256) un token para clientID con el RNC del emisor y el role.
func Generate(secret, clientID, rnc, role, issuer string, expMinutes int) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expMinutes) * time.Minute)),
		},
		ClientID: clientID,
		RNC:      rnc,
		Role:     role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse valida firma y expiración y devuelve clientID, RNC y role.
func Parse(secret, tokenString string) (clientID, rnc, role string, err error) {
	if secret == "" {
		return "", "", "", ErrEmptySecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", "", "", fmt.Errorf("jwt: %w", err)
	}
	if !token.Valid || claims.ClientID == "" {
		return "", "", "", ErrInvalidClaims
	}
	return claims.ClientID, claims.RNC, claims.Role, nil
}
