package squarewebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries base64(HMAC-SHA256(key, notificationURL + body)).
const SignatureHeader = "x-square-hmacsha256-signature"

// Sign computes the signature Square sends for body delivered to notificationURL.
func Sign(signatureKey, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time. An empty key or header never verifies.
func VerifySignature(signatureKey, notificationURL string, body []byte, header string) bool {
	if signatureKey == "" || header == "" {
		return false
	}
	expected := Sign(signatureKey, notificationURL, body)
	return hmac.Equal([]byte(expected), []byte(header))
}
