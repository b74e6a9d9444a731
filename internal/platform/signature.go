package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// validateSignature checks an X-Hub-Signature-256 header ("sha256=<hex>")
// against the HMAC-SHA256 of the raw body using the app secret. The
// comparison is constant time. An empty secret disables the check.
func validateSignature(body []byte, signatureHeader, secret string) error {
	if secret == "" {
		return nil
	}

	sig, ok := strings.CutPrefix(signatureHeader, "sha256=")
	if !ok {
		return ErrBadSignature
	}

	expected, err := hex.DecodeString(sig)
	if err != nil {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrBadSignature
	}
	return nil
}
