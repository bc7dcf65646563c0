package parser

import "strings"

// maxInternPoolSize limits a pool to prevent unbounded memory growth.
// Past the limit, strings are returned without being stored.
const maxInternPoolSize = 500000

// internPool deduplicates repeated device IDs, signal names and categories
// so equal strings share one backing array. A pool belongs to a single
// chunk worker and is not safe for concurrent use.
type internPool struct {
	pool map[string]string
}

func newInternPool() *internPool {
	return &internPool{pool: make(map[string]string, 256)}
}

// intern returns the canonical copy of s. The first copy is cloned so the
// pool does not pin the source line s was sliced from.
func (ip *internPool) intern(s string) string {
	if s == "" {
		return s
	}
	if pooled, ok := ip.pool[s]; ok {
		return pooled
	}
	if len(ip.pool) >= maxInternPoolSize {
		return s
	}
	owned := strings.Clone(s)
	ip.pool[owned] = owned
	return owned
}

func (ip *internPool) size() int {
	return len(ip.pool)
}
