package domain

import "context"

// DedupCache remembers incident dedup keys that already passed through
// the proxy. Remember reports whether the key was seen before storing
// it, so a first push and its duplicates can be told apart in one call.
type DedupCache interface {
	Remember(ctx context.Context, key string) (seen bool, err error)
}
