package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes the hex HMAC-SHA256 digest of a raw payload with the
// pre-shared secret. Exposed so tests and the processor simulator can
// produce valid signatures.
func Sign(secret string, payload []byte) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifySignature checks a supplied signature against the digest of the
// raw, unparsed request body. Constant-time comparison prevents timing
// attacks; any mismatch is ErrSignatureInvalid and must leave state
// untouched.
func VerifySignature(secret string, payload []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	if signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrSignatureInvalid)
	}

	expected, err := Sign(secret, payload)
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}
