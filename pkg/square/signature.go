package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries Square's webhook HMAC.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// VerifyWebhookSignature checks the HMAC-SHA256 Square computes over the
// notification URL followed by the raw body. Verification is disabled when no
// signature key is configured.
func (c *Client) VerifyWebhookSignature(body []byte, header string) bool {
	if c == nil || c.signatureKey == "" {
		return true
	}
	return ValidSignature(body, c.notificationURL, c.signatureKey, header)
}

// ValidSignature is the stateless form of VerifyWebhookSignature.
func ValidSignature(body []byte, notificationURL, key, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || key == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
