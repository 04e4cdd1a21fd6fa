// Package credentials implements thread-safe rotation and exhaustion
// tracking of API credentials.
package credentials

import "sync"

// Credential is one API key used to authenticate external calls.
type Credential struct {
	ID     int
	Secret string
}

// Pool rotates among an ordered set of credentials. Exhaustion is monotonic
// for the remainder of a run: once marked, a credential is never handed out
// again. True remaining quota is not observable ahead of a failed call, so
// rotation is plain round-robin and exhaustion is discovered reactively.
type Pool struct {
	mu        sync.Mutex
	creds     []Credential
	exhausted []bool
	next      int
}

// NewPool builds a pool from the ordered secret list, skipping empty entries.
func NewPool(secrets []string) *Pool {
	p := &Pool{}
	for _, s := range secrets {
		if s == "" {
			continue
		}
		p.creds = append(p.creds, Credential{ID: len(p.creds), Secret: s})
	}
	p.exhausted = make([]bool, len(p.creds))
	return p
}

// Acquire returns the next non-exhausted credential, round-robin starting
// after the last one returned. It probes each slot at most once; ok is false
// when every credential is exhausted, which is the terminal run-stopping
// condition.
func (p *Pool) Acquire() (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < len(p.creds); i++ {
		idx := (p.next + i) % len(p.creds)
		if p.exhausted[idx] {
			continue
		}
		p.next = idx + 1
		return p.creds[idx], true
	}
	return Credential{}, false
}

// MarkExhausted flags the credential; idempotent and safe from any worker.
func (p *Pool) MarkExhausted(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id >= 0 && id < len(p.exhausted) {
		p.exhausted[id] = true
	}
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Remaining returns the count of credentials not yet exhausted.
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ex := range p.exhausted {
		if !ex {
			n++
		}
	}
	return n
}
