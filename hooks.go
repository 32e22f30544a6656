package swcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The worker calls them on hot paths.
type Hooks interface {
	// Install lifecycle. n is the number of assets in the batch.
	InstallStarted(store string, n int)
	InstallCompleted(store string, n int, took time.Duration)
	InstallFailed(store string, err error)

	// Fetch interception. key is the request identity.
	CacheHit(key string)
	CacheMiss(key string)
	// A miss whose network call failed; err is returned to the caller too.
	NetworkError(key string, err error)

	// An entry was deleted by the store on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A store operation failed without failing the caller
	// (lookup errors during Fetch, rollback or index errors).
	StoreError(op string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) InstallStarted(string, int)                  {}
func (NopHooks) InstallCompleted(string, int, time.Duration) {}
func (NopHooks) InstallFailed(string, error)                 {}
func (NopHooks) CacheHit(string)                             {}
func (NopHooks) CacheMiss(string)                            {}
func (NopHooks) NetworkError(string, error)                  {}
func (NopHooks) SelfHeal(string, string)                     {}
func (NopHooks) StoreError(string, error)                    {}
