// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package serverutil

import (
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"cvs.io/log"
)

// The maximum number of visitors that a RateLimiter can track.
const rateMaxVisitors = 100000

// RateLimiter implements a rate limiter with exponential backoff,
// up to a specified maximum.
type RateLimiter struct {
	// Backoff specifies an initial backoff duration for a key.
	// After the first request for a given key the key will be denied until
	// the backoff has passed. If another request arrives after the backoff
	// but before Max, the backoff duration is doubled.
	Backoff time.Duration

	// Max specifies a maximum backoff duration.
	Max time.Duration

	mu    sync.Mutex // Guards the fields below.
	cache *lru.Cache[string, *visitor]
}

type visitor struct {
	seen    time.Time
	backoff time.Duration
}

// Pass attempts to pass key through the rate limiter, returning true if key is
// within the rate limit. If it returns false it also returns the duration that
// must elapse before the key will be allowed to pass again.
func (r *RateLimiter) Pass(key string) (bool, time.Duration) {
	return r.pass(time.Now(), key)
}

func (r *RateLimiter) pass(now time.Time, key string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The zero RateLimiter is ready to use.
	if r.cache == nil {
		r.cache, _ = lru.New[string, *visitor](rateMaxVisitors)
	}

	v, ok := r.cache.Get(key)
	if !ok {
		// The least recently seen visitor is evicted when the cache is full.
		r.cache.Add(key, &visitor{seen: now, backoff: r.Backoff})
	} else {
		// If MaxBackoff has passed since its last request,
		// permit it and reset the backoff to its initial state.
		// Otherwise permit it only once its backoff has passed,
		// and double the backoff.
		if now.After(v.seen.Add(r.Max)) {
			v.backoff = r.Backoff
		} else {
			passTime := v.seen.Add(v.backoff)
			if !now.After(passTime) {
				return false, passTime.Sub(now)
			}
			v.backoff *= 2
			if v.backoff > r.Max {
				v.backoff = r.Max
			}
		}
		v.seen = now
	}

	// Get and Add keep the cache ordered by when each key was last
	// seen, so expired visitors are at the old end.
	for {
		_, old, ok := r.cache.GetOldest()
		if !ok || !now.After(old.seen.Add(r.Max)) {
			break
		}
		r.cache.RemoveOldest()
	}
	return true, 0
}

// Len returns the number of keys being tracked.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}

// RateLimitListener returns a listener that closes, without serving,
// connections from a host that the limiter does not pass.
func RateLimitListener(l net.Listener, r *RateLimiter) net.Listener {
	return &rateListener{Listener: l, limiter: r}
}

type rateListener struct {
	net.Listener
	limiter *RateLimiter
}

func (l *rateListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err != nil {
			host = conn.RemoteAddr().String()
		}
		if ok, wait := l.limiter.Pass(host); !ok {
			log.Info.Printf("serverutil: refusing connection from %s for %v", host, wait)
			conn.Close()
			continue
		}
		return conn, nil
	}
}
