package integration

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature_Body(t *testing.T) {
	key := SigningKey{Secret: "s3cret"}
	body := []byte(`{"type":"notification_event"}`)
	now := time.Now()

	tests := []struct {
		name   string
		header string
		ok     bool
	}{
		{"valid", SignBody("s3cret", body), true},
		{"upper case hex", "sha1=" + strings.ToUpper(strings.TrimPrefix(SignBody("s3cret", body), "sha1=")), true},
		{"wrong secret", SignBody("other", body), false},
		{"missing prefix", strings.TrimPrefix(SignBody("s3cret", body), "sha1="), false},
		{"not hex", "sha1=zz", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySignature(key, Delivery{HubSignature: tt.header, Body: body}, now, time.Second)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestVerifySignature_Versioned(t *testing.T) {
	key := SigningKey{Secret: "s3cret", Version: SignatureVersionV0}
	body := []byte(`{"type":"ping"}`)
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	tests := []struct {
		name string
		d    Delivery
		ok   bool
	}{
		{"valid", Delivery{Signature: SignVersioned("s3cret", now, body), Timestamp: ts, Body: body}, true},
		{"tampered body", Delivery{Signature: SignVersioned("s3cret", now, body), Timestamp: ts, Body: []byte(`{}`)}, false},
		{"timestamp not covered", Delivery{Signature: SignVersioned("s3cret", now, body), Timestamp: strconv.FormatInt(now.Unix()+1, 10), Body: body}, false},
		{"missing timestamp", Delivery{Signature: SignVersioned("s3cret", now, body), Body: body}, false},
		{"body signature only", Delivery{HubSignature: SignBody("s3cret", body), Timestamp: ts, Body: body}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySignature(key, tt.d, now, 10*time.Second)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestVerifySignature_NoSecret(t *testing.T) {
	body := []byte("x")
	err := verifySignature(SigningKey{}, Delivery{HubSignature: SignBody("", body), Body: body}, time.Now(), time.Second)
	assert.EqualError(t, err, "no signing secret configured")
}
