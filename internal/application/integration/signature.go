package integration

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"
)

// SignatureVersionV0 selects the versioned signature scheme
const SignatureVersionV0 = "v0"

// SigningKey is the connector-level shared secret of an HMAC connector
type SigningKey struct {
	Secret string
	// Version is "" for body-only SHA1 signatures, "v0" for the versioned
	// SHA256 scheme that also carries a timestamp
	Version string
}

// signatureError reports why a signature was rejected. The reason is only
// logged; callers see ErrWebhookUnauthorized.
type signatureError string

func (e signatureError) Error() string { return string(e) }

// verifySignature checks d against key. Body-only signatures arrive as
// "sha1=<hex>" in X-Hub-Signature; versioned ones as "v0=<hex>" in
// X-Signature over "v0:{timestamp}:{body}".
func verifySignature(key SigningKey, d Delivery, now time.Time, tolerance time.Duration) error {
	if key.Secret == "" {
		return signatureError("no signing secret configured")
	}

	if key.Version != SignatureVersionV0 {
		got, ok := strings.CutPrefix(strings.TrimSpace(d.HubSignature), "sha1=")
		if !ok || got == "" {
			return signatureError("missing sha1 signature")
		}
		return compareMAC(sha1.New, key.Secret, got, d.Body)
	}

	got, ok := strings.CutPrefix(strings.TrimSpace(d.Signature), SignatureVersionV0+"=")
	if !ok || got == "" {
		return signatureError("missing v0 signature")
	}
	ts := strings.TrimSpace(d.Timestamp)
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return signatureError("invalid request timestamp")
	}
	skew := now.Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return signatureError("stale request timestamp")
	}

	base := make([]byte, 0, len(ts)+len(d.Body)+4)
	base = append(base, SignatureVersionV0+":"+ts+":"...)
	base = append(base, d.Body...)
	return compareMAC(sha256.New, key.Secret, got, base)
}

func compareMAC(h func() hash.Hash, secret, gotHex string, message []byte) error {
	got, err := hex.DecodeString(strings.ToLower(gotHex))
	if err != nil {
		return signatureError("signature is not hex")
	}
	mac := hmac.New(h, []byte(secret))
	_, _ = mac.Write(message)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return signatureError("signature mismatch")
	}
	return nil
}

// SignBody returns the X-Hub-Signature value for body
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

// SignVersioned returns the X-Signature value for body sent at ts
func SignVersioned(secret string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(SignatureVersionV0 + ":" + strconv.FormatInt(ts.Unix(), 10) + ":"))
	_, _ = mac.Write(body)
	return SignatureVersionV0 + "=" + hex.EncodeToString(mac.Sum(nil))
}
