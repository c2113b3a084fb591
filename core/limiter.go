package core

import (
	"fmt"
	"sync"
)

// OracleLimiter caps the oracle calls made through one environment and keeps
// a per-agent tally. A max of 0 means unlimited.
type OracleLimiter struct {
	mu      sync.Mutex
	max     int
	total   int
	byAgent map[string]int
}

// NewOracleLimiter returns a limiter allowing max calls.
func NewOracleLimiter(max int) *OracleLimiter {
	return &OracleLimiter{max: max, byAgent: map[string]int{}}
}

// Acquire records one call for agentID or fails with ErrOracleLimit once the
// cap is reached.
func (l *OracleLimiter) Acquire(agentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max > 0 && l.total >= l.max {
		return fmt.Errorf("%w: %d", ErrOracleLimit, l.max)
	}

	l.total++
	l.byAgent[agentID]++

	return nil
}

// Release returns a call acquired for agentID whose ask failed.
func (l *OracleLimiter) Release(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byAgent[agentID] == 0 {
		return
	}

	l.total--
	l.byAgent[agentID]--
}

// Count returns the number of calls made so far.
func (l *OracleLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.total
}

// CountFor returns the calls made on behalf of one agent.
func (l *OracleLimiter) CountFor(agentID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.byAgent[agentID]
}

// Remaining returns the calls left, or -1 when unlimited.
func (l *OracleLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1
	}

	return l.max - l.total
}
