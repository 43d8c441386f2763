package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"
)

// Sign returns base64(HMAC-SHA256(secret, timestamp + "." + body)).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares the full encoded value in
// constant time. An empty secret never verifies.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyAny reports whether signature matches any of secrets
func VerifyAny(secrets []string, timestamp string, body []byte, signature string) bool {
	for _, secret := range secrets {
		if Verify(secret, timestamp, body, signature) {
			return true
		}
	}
	return false
}

// SecretSource supplies the shared secrets a delivery may be signed with,
// current first.
type SecretSource interface {
	Secrets() []string
}

// StaticSecret is a fixed secret
type StaticSecret string

func (s StaticSecret) Secrets() []string { return []string{string(s)} }

// RotatingSecret holds a secret that can be replaced while requests are in
// flight. After a rotation the previous value keeps verifying until the
// grace period ends, so deliveries signed before the provider switched over
// are not rejected.
type RotatingSecret struct {
	mu            sync.RWMutex
	current       string
	previous      string
	previousUntil time.Time
	grace         time.Duration
	now           func() time.Time
}

func NewRotatingSecret(initial string) *RotatingSecret {
	return &RotatingSecret{current: initial, now: time.Now}
}

// SetGrace sets how long a replaced secret stays valid
func (r *RotatingSecret) SetGrace(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grace = d
}

// Secret returns the current secret
func (r *RotatingSecret) Secret() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *RotatingSecret) Secrets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.previous != "" && r.now().Before(r.previousUntil) {
		return []string{r.current, r.previous}
	}
	return []string{r.current}
}

// Set replaces the secret. It reports whether the value changed.
func (r *RotatingSecret) Set(secret string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if secret == r.current {
		return false
	}
	r.previous = r.current
	r.previousUntil = r.now().Add(r.grace)
	r.current = secret
	return true
}
