package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureBase builds the string Razorpay signs for a checkout callback:
// "{order_id}|{payment_id}".
func SignatureBase(orderID, paymentID string) string {
	return orderID + "|" + paymentID
}

// VerifySignature validates the HMAC-SHA256 signature attached to a payment
// callback. Missing fields or a malformed hex signature verify as false,
// never as an error.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(SignatureBase(orderID, paymentID)))
	expected := h.Sum(nil)

	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	return hmac.Equal(given, expected)
}

// GenerateSignature creates an HMAC-SHA256 signature for testing
func GenerateSignature(orderID, paymentID, secret string) string {
	if secret == "" {
		return ""
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(SignatureBase(orderID, paymentID)))
	return hex.EncodeToString(h.Sum(nil))
}
