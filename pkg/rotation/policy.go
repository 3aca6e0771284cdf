package rotation

import (
	"sync"
	"time"
)

// Policy is the per-service rotation schedule. A key with no recorded last
// rotation is due immediately; otherwise it is due once the interval has
// fully elapsed. The engine mutates the policy in place after each attempt;
// policies live for the process lifetime.
type Policy struct {
	Service  string
	Interval time.Duration
	Keys     []string

	mu   sync.Mutex
	last map[string]time.Time
}

// NewPolicy creates a policy with no rotation history, so every key is due
// on the first cycle.
func NewPolicy(service string, interval time.Duration, keys []string) *Policy {
	return &Policy{
		Service:  service,
		Interval: interval,
		Keys:     append([]string(nil), keys...),
		last:     make(map[string]time.Time),
	}
}

// LastRotation returns when the key was last rotated, if ever.
func (p *Policy) LastRotation(key string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.last[key]
	return t, ok
}

// NextRotation returns last + interval, or zero/false when the key has
// never rotated and is due immediately.
func (p *Policy) NextRotation(key string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.last[key]
	if !ok {
		return time.Time{}, false
	}
	return t.Add(p.Interval), true
}

// Due reports whether the key should rotate at now.
func (p *Policy) Due(key string, now time.Time) bool {
	next, ok := p.NextRotation(key)
	if !ok {
		return true
	}
	return !now.Before(next)
}

// MarkRotated records a successful rotation. Failed attempts never call
// this, so the next cycle retries.
func (p *Policy) MarkRotated(key string, now time.Time) {
	p.mu.Lock()
	p.last[key] = now
	p.mu.Unlock()
}

// LastAll snapshots the full rotation history for persistence.
func (p *Policy) LastAll() map[string]time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]time.Time, len(p.last))
	for key, t := range p.last {
		out[key] = t
	}
	return out
}

// RestoreLast seeds rotation history, used when loading persisted schedule
// state at startup.
func (p *Policy) RestoreLast(key string, t time.Time) {
	p.mu.Lock()
	p.last[key] = t
	p.mu.Unlock()
}

// KeySchedule is a read-only snapshot of one key's schedule.
type KeySchedule struct {
	Key          string     `json:"key"`
	LastRotation *time.Time `json:"last_rotation,omitempty"`
	NextRotation *time.Time `json:"next_rotation,omitempty"`
	Due          bool       `json:"due"`
}

// Snapshot reports the schedule for every key at now.
func (p *Policy) Snapshot(now time.Time) []KeySchedule {
	out := make([]KeySchedule, 0, len(p.Keys))
	for _, key := range p.Keys {
		ks := KeySchedule{Key: key, Due: p.Due(key, now)}
		if last, ok := p.LastRotation(key); ok {
			lastCopy := last
			nextCopy := last.Add(p.Interval)
			ks.LastRotation = &lastCopy
			ks.NextRotation = &nextCopy
		}
		out = append(out, ks)
	}
	return out
}
