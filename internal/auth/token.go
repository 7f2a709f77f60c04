// Package auth verifies the short-lived capability tokens that authorize a
// single media stream session.
//
// A token is base64url(payload) "." base64url(signature), where payload is the
// JSON claims object and signature is HMAC-SHA256 over the encoded payload
// segment using the shared stream secret.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMissingSecret is returned when the verifier has no signing secret
	ErrMissingSecret = errors.New("auth: stream token secret not configured")
	// ErrMalformedToken is returned when the token does not have the expected shape
	ErrMalformedToken = errors.New("auth: malformed token")
	// ErrInvalidSignature is returned when the signature does not match the payload
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	// ErrTokenExpired is returned when exp is not in the future
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims is the capability token payload
type Claims struct {
	Exp            int64  `json:"exp"`
	OrganizationID string `json:"organizationId"`
	AgentID        string `json:"agentId"`
}

// ExpiresAt returns exp as a time
func (c *Claims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

// Verifier validates capability tokens against a shared secret
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for the given shared secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithClock overrides the time source used for expiry checks
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify checks the signature and expiry of token and returns its claims
func (v *Verifier) Verify(token string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrMissingSecret
	}

	payloadSeg, sigSeg, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || payloadSeg == "" || sigSeg == "" || strings.Contains(sigSeg, ".") {
		return nil, ErrMalformedToken
	}

	signature, err := decodeSegment(sigSeg)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrMalformedToken, err)
	}

	if !hmac.Equal(v.sign(payloadSeg), signature) {
		return nil, ErrInvalidSignature
	}

	payload, err := decodeSegment(payloadSeg)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}

	if claims.Exp <= v.now().Unix() {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}

// Sign mints a token for claims. Used by tooling and tests; production tokens
// are issued by the call-routing service.
func (v *Verifier) Sign(claims Claims) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrMissingSecret
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}

	payloadSeg := base64.RawURLEncoding.EncodeToString(payload)
	return payloadSeg + "." + base64.RawURLEncoding.EncodeToString(v.sign(payloadSeg)), nil
}

func (v *Verifier) sign(payloadSeg string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payloadSeg))
	return mac.Sum(nil)
}

// decodeSegment accepts base64url with or without padding
func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
}
