package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTValidator resolves a bearer token to a user id. Issuance happens elsewhere.
type JWTValidator struct {
	alg    string
	secret []byte
	pub    *rsa.PublicKey
}

func NewHS256Validator(secret string) *JWTValidator {
	return &JWTValidator{alg: "HS256", secret: []byte(secret)}
}

func NewRS256Validator(path string) (*JWTValidator, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &JWTValidator{alg: "RS256", pub: pub}, nil
}

// NewValidator picks the algorithm from config.
func NewValidator(alg, secret, publicKeyPath string) (*JWTValidator, error) {
	if strings.ToUpper(alg) == "RS256" {
		return NewRS256Validator(publicKeyPath)
	}
	return NewHS256Validator(secret), nil
}

func (j *JWTValidator) key(_ *jwt.Token) (interface{}, error) {
	if j.pub != nil {
		return j.pub, nil
	}
	return j.secret, nil
}

func (j *JWTValidator) Validate(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, j.key, jwt.WithValidMethods([]string{j.alg}))
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", ErrInvalidToken
	}
	for _, k := range []string{"sub", "user_id", "user_uuid"} {
		if v, ok := claims[k].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrInvalidToken
}

func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
