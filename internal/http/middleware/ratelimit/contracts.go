package ratelimit

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}
