// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package offer

import (
	"sync"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPendingTTL        = 24 * time.Hour
	DefaultMaxPendingEntries = 256
)

// Registry holds offer requests waiting for a tap or impression, keyed by reference id.
// Entries expire after a TTL and the oldest entry is dropped when the registry is full.
type Registry struct {
	cache      *cache.Cache
	maxEntries int
	metrics    *metrics.Recorder

	// mu makes the size check and insert in Put one step.
	mu sync.Mutex
}

func NewRegistry(ttl time.Duration, maxEntries int, m *metrics.Recorder) *Registry {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxPendingEntries
	}
	r := &Registry{
		cache:      cache.New(ttl, ttl/2),
		maxEntries: maxEntries,
		metrics:    m,
	}
	r.cache.OnEvicted(func(id string, _ interface{}) {
		logrus.Debugf("pending offer request %s removed", id)
		r.metrics.PendingRequests(r.cache.ItemCount())
	})
	return r
}

// Put registers req, assigning a fresh reference id when it has none, and returns the id.
func (r *Registry) Put(req *Request) string {
	if req.ReferenceID == "" {
		req.ReferenceID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cache.Get(req.ReferenceID); !exists {
		for r.cache.ItemCount() >= r.maxEntries {
			if !r.evictOldest() {
				break
			}
		}
	}
	r.cache.SetDefault(req.ReferenceID, req)
	r.metrics.PendingRequests(r.cache.ItemCount())
	return req.ReferenceID
}

// evictOldest drops the entry closest to expiry, which is the oldest one.
func (r *Registry) evictOldest() bool {
	var (
		oldestID  string
		oldestExp int64
	)
	for id, item := range r.cache.Items() {
		if oldestID == "" || item.Expiration < oldestExp {
			oldestID, oldestExp = id, item.Expiration
		}
	}
	if oldestID == "" {
		return false
	}
	logrus.Warnf("pending offer registry full, dropping %s", oldestID)
	r.cache.Delete(oldestID)
	return true
}

// Get returns the pending request without removing it.
func (r *Registry) Get(id string) (*Request, bool) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Request), true
}

// Take returns and removes the pending request.
func (r *Registry) Take(id string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.Get(id)
	if ok {
		r.cache.Delete(id)
	}
	return req, ok
}

// Remove drops the request if present.
func (r *Registry) Remove(id string) {
	r.cache.Delete(id)
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
