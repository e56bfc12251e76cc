package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by every signed bridge request.
const (
	HeaderKey       = "X-EQB-Key"
	HeaderTimestamp = "X-EQB-Timestamp"
	HeaderSignature = "X-EQB-Signature"
	HeaderAccount   = "X-EQB-Account"
)

// HMACAuth holds the credentials for HMAC-authenticated brokerage bridge
// requests.
type HMACAuth struct {
	Key     string // API key
	Secret  string // shared secret, raw bytes
	Account string // brokerage account number
}

// Headers returns the HTTP headers for a bridge request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	out := map[string]string{
		HeaderKey:       h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign(h.Secret, ts, method, path, body),
	}
	if h.Account != "" {
		out[HeaderAccount] = h.Account
	}
	return out
}

// Sign computes the request signature for the given parts.
func Sign(secret, ts, method, path, body string) string {
	return hmacSHA256Base64([]byte(secret), ts+method+path+body)
}

// Verify reports whether sig matches the request parts, in constant time.
func Verify(secret, ts, method, path, body, sig string) bool {
	want, err := base64.StdEncoding.DecodeString(Sign(secret, ts, method, path, body))
	if err != nil {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s, account=%s}", redact(h.Key), redact(h.Secret), redact(h.Account))
}
