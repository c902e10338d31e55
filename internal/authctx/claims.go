// Package authctx verifies bearer tokens presented over the wire protocol
// and exposes the identity they carry, trimmed to verification only: token
// issuance, refresh-token rotation, and login flows are external
// collaborators out of scope for this module.
package authctx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity this module trusts once a token verifies: a
// stable user id plus whatever the issuer attached.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates access tokens issued by an external auth service.
// It holds only the verification key, never a signing key — this module
// never mints tokens.
type Verifier struct {
	publicKey []byte
}

// NewVerifier builds a Verifier over the HMAC secret (or public key,
// depending on the external issuer's signing method) used to verify
// incoming bearer tokens.
func NewVerifier(verificationKey string) *Verifier {
	return &Verifier{publicKey: []byte(verificationKey)}
}

// Verify parses and validates tokenString, rejecting anything not signed
// with an HMAC method to guard against algorithm-confusion attacks.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("authctx: unexpected signing method")
		}
		return v.publicKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("authctx: invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.New("authctx: token missing user_id claim")
	}
	return claims, nil
}
