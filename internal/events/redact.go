package events

import (
	"sort"
	"strings"
	"sync"
)

const secretToken = "[secret]"

func SecretToken() string { return secretToken }

// Redactor replaces known secret values with [secret]. Values can be added
// while a run is in progress, e.g. a one-time code once it has been fetched.
// A nil Redactor returns its input unchanged.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

func NewRedactor(secretValues ...string) *Redactor {
	r := &Redactor{}
	r.Add(secretValues...)
	return r
}

// Add registers more values. Empty values are ignored.
func (r *Redactor) Add(secretValues ...string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, val := range secretValues {
		if val == "" || containsString(r.secrets, val) {
			continue
		}
		r.secrets = append(r.secrets, val)
	}
	// longest first so a secret containing another is replaced whole
	sort.SliceStable(r.secrets, func(i, j int) bool {
		return len(r.secrets[i]) > len(r.secrets[j])
	})
}

func (r *Redactor) Redact(line string) string {
	if r == nil {
		return line
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, secret := range r.secrets {
		line = strings.ReplaceAll(line, secret, secretToken)
	}
	return line
}

// RedactArgs returns a copy of args with every secret value redacted.
func (r *Redactor) RedactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Redact(a)
	}
	return out
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
