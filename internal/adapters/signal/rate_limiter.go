package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// JoinLimiter throttles join attempts per user with a token bucket.
type JoinLimiter struct {
	mu    sync.Mutex
	users map[domain.UserID]*userLimiter
	limit rate.Limit
	burst int
	now   func() time.Time
}

func NewJoinLimiter(perSecond float64, burst int) *JoinLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &JoinLimiter{
		users: make(map[domain.UserID]*userLimiter),
		limit: rate.Limit(perSecond),
		burst: burst,
		now:   time.Now,
	}
}

func (jl *JoinLimiter) Allow(uid domain.UserID) bool {
	jl.mu.Lock()
	defer jl.mu.Unlock()

	now := jl.now()
	ul, ok := jl.users[uid]
	if !ok {
		jl.prune(now)
		ul = &userLimiter{lim: rate.NewLimiter(jl.limit, jl.burst)}
		jl.users[uid] = ul
	}
	ul.lastSeen = now
	return ul.lim.AllowN(now, 1)
}

func (jl *JoinLimiter) prune(now time.Time) {
	for uid, ul := range jl.users {
		if now.Sub(ul.lastSeen) > limiterIdleTTL {
			delete(jl.users, uid)
		}
	}
}
