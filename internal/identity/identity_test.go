package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signedAssertion(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseAssertion(t *testing.T) {
	userID := uuid.New()
	token := signedAssertion(t, Claims{
		UserID:      userID,
		DisplayName: "Alice",
		Email:       "alice@example.com",
		AvatarURL:   "https://cdn.example.com/a.png",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	ident, err := ParseAssertion(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, userID, ident.UserID)
	require.Equal(t, "Alice", ident.DisplayName)
	require.Equal(t, "alice@example.com", ident.Email)
	require.Equal(t, "https://cdn.example.com/a.png", ident.AvatarURL)
}

func TestParseAssertionRejectsMissingUserID(t *testing.T) {
	// Signed and well-formed, but about nobody.
	token := signedAssertion(t, Claims{
		DisplayName: "Ghost",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	_, err := ParseAssertion(token, testSecret)
	require.ErrorIs(t, err, ErrNoIdentity)
}

func TestParseAssertionRejectsBadSignature(t *testing.T) {
	token := signedAssertion(t, Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, "some-other-secret")

	_, err := ParseAssertion(token, testSecret)
	require.Error(t, err)
}

func TestParseAssertionRejectsExpired(t *testing.T) {
	token := signedAssertion(t, Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}, testSecret)

	_, err := ParseAssertion(token, testSecret)
	require.Error(t, err)
}
