package usecase

import (
	"sync"
	"time"

	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/metrics"
)

// defaultSessionIdle is how long a session is kept after its last activity
const defaultSessionIdle = 30 * time.Minute

// LatestResults keeps the most recent comparison per session. Each lookup
// takes a ticket with Begin, and only the holder of the newest ticket may
// commit, so a slow response never overwrites a newer one. Sessions idle
// for longer than the idle window are dropped.
type LatestResults struct {
	mu        sync.Mutex
	sessions  map[string]*sessionResult
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type sessionResult struct {
	ticket     uint64
	comparison *domain.Comparison
	lastSeen   time.Time
}

// NewLatestResults creates an empty tracker
func NewLatestResults() *LatestResults {
	return NewLatestResultsWithIdle(defaultSessionIdle)
}

// NewLatestResultsWithIdle creates a tracker that forgets sessions after
// idle without activity
func NewLatestResultsWithIdle(idle time.Duration) *LatestResults {
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	return &LatestResults{
		sessions:  make(map[string]*sessionResult),
		idle:      idle,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Begin issues a new ticket for the session, superseding any outstanding one
func (l *LatestResults) Begin(session string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	s, ok := l.sessions[session]
	if !ok {
		s = &sessionResult{}
		l.sessions[session] = s
	}
	s.ticket++
	s.lastSeen = now
	return s.ticket
}

// Commit stores the comparison if ticket is still the newest for the
// session. It reports whether the comparison was kept.
func (l *LatestResults) Commit(session string, ticket uint64, comparison *domain.Comparison) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[session]
	if !ok || s.ticket != ticket {
		metrics.StaleResults.Inc()
		return false
	}
	s.comparison = comparison
	s.lastSeen = l.now()
	return true
}

// Latest returns the last committed comparison for the session
func (l *LatestResults) Latest(session string) (*domain.Comparison, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[session]
	if !ok || s.comparison == nil {
		return nil, false
	}
	s.lastSeen = l.now()
	return s.comparison, true
}

// Len returns the number of tracked sessions
func (l *LatestResults) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// sweep drops idle sessions, at most once per idle window. Caller holds mu.
func (l *LatestResults) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	for key, s := range l.sessions {
		if now.Sub(s.lastSeen) >= l.idle {
			delete(l.sessions, key)
		}
	}
	l.lastSweep = now
}
