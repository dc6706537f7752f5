package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// signatureV1 extracts the v1 component of a "ts=...,v1=<hex>" header.
func signatureV1(header string) string {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.TrimSpace(k) == "v1" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Sign returns the hex HMAC-SHA256 of body under secret, as carried in the
// v1 component of the signature header.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature reports whether header carries a valid v1 signature of body.
func verifySignature(secret, body []byte, header string) bool {
	got, err := hex.DecodeString(signatureV1(header))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return subtle.ConstantTimeCompare(mac.Sum(nil), got) == 1
}
