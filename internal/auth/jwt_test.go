package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestHS256(t *testing.T) {
	v := NewHS256Validator("secret")
	exp := time.Now().Add(time.Hour).Unix()

	uid, err := v.Validate(sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"sub": "alice", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)

	uid, err = v.Validate(sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"user_id": "bob", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, "bob", uid)

	_, err = v.Validate(sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "alice", "exp": exp}))
	assert.Error(t, err)

	_, err = v.Validate(sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Minute).Unix()}))
	assert.Error(t, err)

	_, err = v.Validate(sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"exp": exp}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRS256(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := NewValidator("rs256", "", path)
	require.NoError(t, err)

	uid, err := v.Validate(sign(t, jwt.SigningMethodRS256, priv, jwt.MapClaims{"sub": "carol"}))
	require.NoError(t, err)
	assert.Equal(t, "carol", uid)

	// an HS256 token signed with anything must not pass an RS256 validator
	_, err = v.Validate(sign(t, jwt.SigningMethodHS256, []byte("x"), jwt.MapClaims{"sub": "carol"}))
	assert.Error(t, err)
}

func TestParseBearerToken(t *testing.T) {
	tok, err := ParseBearerToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	for _, h := range []string{"", "abc", "Basic abc", "Bearer "} {
		_, err := ParseBearerToken(h)
		assert.Error(t, err, h)
	}
}
