package geminiwebapi

import (
	"sync"
	"time"
)

const (
	cookiePSID   = "__Secure-1PSID"
	cookiePSIDTS = "__Secure-1PSIDTS"
)

// Credential is a matched cookie-jar + access-token pair. The two halves are
// always consumed together; callers must never mix cookies from one snapshot
// with the token of another.
type Credential struct {
	Cookies     map[string]string
	AccessToken string
	IssuedAt    time.Time
}

func (c Credential) clone() Credential {
	cookies := make(map[string]string, len(c.Cookies))
	for k, v := range c.Cookies {
		cookies[k] = v
	}
	return Credential{Cookies: cookies, AccessToken: c.AccessToken, IssuedAt: c.IssuedAt}
}

// CredentialStore holds the current credential. The background refresher is
// the sole writer after initialization; foreground calls take a snapshot at
// the start of request encoding and never re-read mid-request.
type CredentialStore struct {
	mu   sync.RWMutex
	cred Credential
}

func NewCredentialStore(seedCookies map[string]string) *CredentialStore {
	s := &CredentialStore{}
	s.cred.Cookies = make(map[string]string, len(seedCookies))
	for k, v := range seedCookies {
		s.cred.Cookies[k] = v
	}
	return s
}

// Snapshot returns a deep copy of the current credential.
func (s *CredentialStore) Snapshot() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.clone()
}

// Replace swaps in a whole new credential. Token and cookies change together,
// never one half at a time.
func (s *CredentialStore) Replace(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = c.clone()
}

// SetCookie updates a single cookie in place. Used by the refresher, which
// rotates the short-lived session cookie without re-deriving the token.
func (s *CredentialStore) SetCookie(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred.Cookies == nil {
		s.cred.Cookies = map[string]string{}
	}
	s.cred.Cookies[name] = value
}

// Identity returns the stable identity of this credential: the long-lived
// session cookie value. Background tasks are keyed by it.
func (s *CredentialStore) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Cookies[cookiePSID]
}
