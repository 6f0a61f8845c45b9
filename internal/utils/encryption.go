package utils

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ValidatePublicKey checks that the client-supplied value is a base64url
// encoded JWK carrying an RSA public key. The key is stored verbatim for
// other clients to fetch; the server itself never encrypts or decrypts
// with it.
func ValidatePublicKey(encoded string) error {
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode base64 JWK: %w", err)
	}

	key, err := jwk.ParseKey(decoded)
	if err != nil {
		return fmt.Errorf("parse JWK: %w", err)
	}

	var pubKey crypto.PublicKey
	if err := key.Raw(&pubKey); err != nil {
		return fmt.Errorf("extract public key: %w", err)
	}

	if _, ok := pubKey.(*rsa.PublicKey); !ok {
		return fmt.Errorf("key is not RSA")
	}
	return nil
}
