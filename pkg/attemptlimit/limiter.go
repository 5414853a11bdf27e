package attemptlimit

import (
	"context"
	"time"
)

const (
	// DefaultMaxAttempts is the number of failed verifications allowed before
	// the identity is locked out.
	DefaultMaxAttempts = 3

	// DefaultWindow is the rolling window failed attempts are counted over.
	DefaultWindow = 10 * time.Minute

	// DefaultLockDuration is the base lockout applied once the attempt budget
	// is exhausted.
	DefaultLockDuration = 10 * time.Minute

	// DefaultMaxLockDuration caps exponential lockout growth.
	DefaultMaxLockDuration = 4 * time.Hour
)

// Status is the outcome of a limiter call.
type Status struct {
	// Allowed reports whether the identity may attempt a verification.
	Allowed bool

	// Remaining is the number of attempts left before lockout.
	Remaining int

	// RetryAfter is how long the caller must wait while locked. Zero when
	// Allowed is true.
	RetryAfter time.Duration
}

// LockPolicy describes how a lockout is applied once the attempt budget is
// exhausted.
type LockPolicy struct {
	Threshold   int           // attempts allowed per window
	Base        time.Duration // initial lock duration
	Max         time.Duration // cap for exponential growth
	Exponential bool          // double the lock per consecutive lockout
}

// DurationFor returns the lock duration for the given consecutive-lockout
// streak (1 = first lockout).
func (p LockPolicy) DurationFor(streak int) time.Duration {
	d := p.Base
	if !p.Exponential {
		return d
	}
	for i := 1; i < streak; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return min(d, p.Max)
}

// Store is the durable backend for attempt bookkeeping. Implementations must
// make IncrementIfAllowed a single atomic operation: evaluating the count and
// writing the incremented value as two steps would let concurrent failures
// slip under the threshold.
type Store interface {
	// IncrementIfAllowed records one failed attempt for key unless it is
	// currently locked, applying a lock per policy when the count reaches the
	// threshold. Returns the attempt count inside the window, the lock expiry
	// (zero when unlocked), and whether the attempt was recorded.
	IncrementIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, policy LockPolicy) (count int64, lockedUntil time.Time, recorded bool, err error)

	// Peek returns the current count and lock expiry without recording anything.
	Peek(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, lockedUntil time.Time, err error)

	// Reset clears the count, lock, and lockout streak for key.
	Reset(ctx context.Context, key string) error

	// DeleteExpired drops windows and locks that ended before now. Housekeeping
	// only; correctness never depends on it running.
	DeleteExpired(ctx context.Context, now time.Time) error
}

// Limiter tracks failed verification attempts per identity and blocks further
// attempts once the budget is exhausted.
type Limiter struct {
	store  Store
	window time.Duration
	policy LockPolicy
	clock  func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMaxAttempts sets how many failures are tolerated per window.
func WithMaxAttempts(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.policy.Threshold = n
		}
	}
}

// WithWindow sets the rolling window failures are counted over.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithLockDuration sets the base lockout duration.
func WithLockDuration(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.policy.Base = d
		}
	}
}

// WithExponentialLock doubles the lock duration on each consecutive lockout,
// capped at max.
func WithExponentialLock(max time.Duration) Option {
	return func(l *Limiter) {
		l.policy.Exponential = true
		if max > 0 {
			l.policy.Max = max
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New creates a Limiter over the given store.
func New(store Store, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	l := &Limiter{
		store:  store,
		window: DefaultWindow,
		policy: LockPolicy{
			Threshold: DefaultMaxAttempts,
			Base:      DefaultLockDuration,
			Max:       DefaultMaxLockDuration,
		},
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.policy.Threshold <= 0 {
		return nil, ErrInvalidLimit
	}
	if l.window <= 0 {
		return nil, ErrInvalidWindow
	}

	return l, nil
}

// Check reports whether key may attempt a verification, without consuming
// anything. Call it before evaluating any submitted code.
func (l *Limiter) Check(ctx context.Context, key string) (*Status, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := l.clock()
	count, lockedUntil, err := l.store.Peek(ctx, key, now, l.window)
	if err != nil {
		return nil, err
	}

	if lockedUntil.After(now) {
		return &Status{RetryAfter: lockedUntil.Sub(now)}, nil
	}

	return &Status{
		Allowed:   true,
		Remaining: max(0, l.policy.Threshold-int(count)),
	}, nil
}

// RecordFailure counts one failed attempt for key, locking it once the
// threshold is reached. The returned status reflects the state after the
// failure: Allowed is false while locked.
func (l *Limiter) RecordFailure(ctx context.Context, key string) (*Status, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := l.clock()
	count, lockedUntil, _, err := l.store.IncrementIfAllowed(ctx, key, now, l.window, l.policy)
	if err != nil {
		return nil, err
	}

	if lockedUntil.After(now) {
		return &Status{RetryAfter: lockedUntil.Sub(now)}, nil
	}

	return &Status{
		Allowed:   true,
		Remaining: max(0, l.policy.Threshold-int(count)),
	}, nil
}

// RecordSuccess clears the attempt count and any lock for key after a
// successful verification.
func (l *Limiter) RecordSuccess(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return l.store.Reset(ctx, key)
}

// Sweep removes stale windows and expired locks.
func (l *Limiter) Sweep(ctx context.Context) error {
	return l.store.DeleteExpired(ctx, l.clock())
}
