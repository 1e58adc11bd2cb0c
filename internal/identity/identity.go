package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoIdentity means the assertion carried no user id. This is the ONE
// thing the gateway checks itself — everything else about the identity
// (passwords, sessions, MFA) already happened upstream.
var ErrNoIdentity = errors.New("identity assertion carries no user id")

// Identity is what the upstream identity service established about the
// person behind a connection. The gateway treats these fields as facts:
// it verifies the assertion's signature, not the identity itself.
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
	AvatarURL   string
}

// Claims is the payload of the identity assertion token.
//
// The upstream identity service issues this token after it has authenticated
// the user however it likes. The gateway never issues tokens — it only
// parses them at the WebSocket handshake.
//
// Why embed jwt.RegisteredClaims?
//   - Standard fields (ExpiresAt, IssuedAt, Issuer) come for free, and
//     expiry is enforced by the parser without extra code here.
type Claims struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url"`
	jwt.RegisteredClaims
}

// ParseAssertion validates an identity assertion and extracts the identity.
//
// It verifies:
//  1. The signature matches the shared secret (not tampered with).
//  2. The token hasn't expired.
//  3. The signing method is HMAC (prevents algorithm-switching attacks).
//  4. A user id is present — a signed token about nobody is refused
//     with ErrNoIdentity.
func ParseAssertion(tokenString, secret string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Called BEFORE signature verification. If someone sends a
			// token signed with "none" or RSA, reject it immediately.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse assertion: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid assertion claims")
	}

	if claims.UserID == uuid.Nil {
		return nil, ErrNoIdentity
	}

	return &Identity{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
		AvatarURL:   claims.AvatarURL,
	}, nil
}
