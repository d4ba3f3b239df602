// Package authtoken issues and verifies the signed bearer credential
// carried by a Join command. The HMAC signing key is derived from a server
// seed plus a per-connection salt via HKDF rather than used directly, so a
// leaked derived key never exposes the seed.
package authtoken

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const keySize = 32

func deriveKey(seed, salt []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, seed, salt, []byte("quakecore-join"))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("authtoken: derive key: %w", err)
	}
	return key, nil
}

// claims is the Join credential's payload: the player identity is asserted
// out of band (by whatever login step minted this token); the token itself
// only proves the bearer was issued a credential for this salt.
type claims struct {
	jwt.RegisteredClaims
	Salt string `json:"salt"`
}

// Issuer mints Join bearer credentials from a server-wide seed.
type Issuer struct {
	seed []byte
	ttl  time.Duration
}

// NewIssuer returns an Issuer using seed to derive per-connection signing
// keys, with tokens valid for ttl.
func NewIssuer(seed []byte, ttl time.Duration) *Issuer {
	return &Issuer{seed: seed, ttl: ttl}
}

// Issue mints a signed token for the given connection salt.
func (i *Issuer) Issue(salt string) (string, error) {
	key, err := deriveKey(i.seed, []byte(salt))
	if err != nil {
		return "", err
	}
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Salt: salt,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("authtoken: sign: %w", err)
	}
	return signed, nil
}

// Verifier checks Join bearer credentials against the same seed an Issuer
// used.
type Verifier struct {
	seed []byte
}

// NewVerifier returns a Verifier using seed to re-derive per-connection
// signing keys.
func NewVerifier(seed []byte) *Verifier {
	return &Verifier{seed: seed}
}

// Verify parses and validates raw, deriving its signing key from the
// salt claim embedded in the token.
func (v *Verifier) Verify(raw string) error {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		unverified, _, err := jwt.NewParser().ParseUnverified(raw, &claims{})
		if err != nil {
			return nil, err
		}
		salt := unverified.Claims.(*claims).Salt
		return deriveKey(v.seed, []byte(salt))
	})
	if err != nil {
		return fmt.Errorf("authtoken: verify: %w", err)
	}
	return nil
}
