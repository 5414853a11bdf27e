// Package attemptlimit tracks failed second-factor verification attempts per
// identity and locks the identity out once the budget is exhausted.
//
// The Limiter counts failures over a rolling window and applies a lock (fixed
// or exponentially increasing) when the threshold is reached. The increment
// and the locked-check are one atomic store operation, so concurrent failures
// from multiple connections are all counted and cannot slip under the
// threshold together.
//
// Two Store implementations ship with the package: MemoryStore for tests and
// single-process deployments, and RedisStore, which runs the whole transition
// in a single Lua script for multi-instance deployments.
//
//	store := attemptlimit.NewMemoryStore()
//	limiter, _ := attemptlimit.New(store,
//	    attemptlimit.WithMaxAttempts(3),
//	    attemptlimit.WithWindow(10*time.Minute),
//	    attemptlimit.WithExponentialLock(4*time.Hour),
//	)
//
//	status, _ := limiter.Check(ctx, identityID)
//	if !status.Allowed {
//	    // tell the user to retry after status.RetryAfter
//	}
package attemptlimit
