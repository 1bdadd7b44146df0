// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shutdown provides a mechanism for registering handlers to be called
// on process shutdown, and for deferring shutdown across short critical
// sections such as the creation of a repository lock.
package shutdown // import "cvs.io/shutdown"

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"cvs.io/log"
)

// GracePeriod specifies the maximum amount of time during which all shutdown
// handlers must complete before the process forcibly exits.
const GracePeriod = 1 * time.Minute

// Handler is a registered shutdown function.
type Handler struct {
	fn       func()
	released int32
}

// Release unregisters the handler. It is called once the resource the
// handler protects has been released normally. Release is idempotent and
// may be called concurrently with Now; in that race the handler either
// runs to completion or not at all.
func (h *Handler) Release() {
	if h == nil {
		return
	}
	atomic.StoreInt32(&h.released, 1)
	shutdown.mu.Lock()
	defer shutdown.mu.Unlock()
	for i, s := range shutdown.sequence {
		if s == h {
			shutdown.sequence = append(shutdown.sequence[:i], shutdown.sequence[i+1:]...)
			break
		}
	}
}

// Handle registers the onShutdown function to be run when the system is being
// shut down. On shutdown, registered functions are run in last-in-first-out
// order. Handle may be called concurrently.
func Handle(onShutdown func()) *Handler {
	h := &Handler{fn: onShutdown}
	shutdown.mu.Lock()
	defer shutdown.mu.Unlock()

	shutdown.sequence = append(shutdown.sequence, h)
	return h
}

// Now calls all registered shutdown closures in last-in-first-out order and
// terminates the process with the given status code.
// It only executes once and guarantees termination within GracePeriod.
// Now may be called concurrently. If a critical section is active the
// handlers run once it ends; Now must not be called inside one.
func Now(code int) {
	shutdown.once.Do(func() {
		log.Debug.Printf("shutdown: status code %d", code)

		// Ensure we terminate after a fixed amount of time.
		go func() {
			killSleep(GracePeriod)
			// Don't use log package here; it may have been flushed already.
			fmt.Fprintf(os.Stderr, "shutdown: %v elapsed since shutdown requested; exiting forcefully", GracePeriod)
			exit(1)
		}()

		critical.mu.Lock()
		critical.stopping = true
		for critical.depth > 0 {
			critical.idle.Wait()
		}
		critical.mu.Unlock()

		shutdown.mu.Lock() // No need to ever unlock.
		for i := len(shutdown.sequence) - 1; i >= 0; i-- {
			h := shutdown.sequence[i]
			if atomic.LoadInt32(&h.released) == 0 {
				h.fn()
			}
		}
		log.Flush()

		exit(code)
	})
}

// Block begins a critical section. Shutdown handlers do not run while a
// critical section is active, so a resource created inside the section
// is registered for cleanup before they can run. Once shutdown has
// begun Block never returns. Critical sections nest.
func Block() {
	critical.mu.Lock()
	if critical.stopping {
		critical.mu.Unlock()
		select {} // The process is exiting.
	}
	critical.depth++
	critical.mu.Unlock()
}

// Unblock ends a critical section begun by Block. A shutdown waiting for
// the outermost section proceeds when it ends.
func Unblock() {
	critical.mu.Lock()
	defer critical.mu.Unlock()
	critical.depth--
	if critical.depth == 0 {
		critical.idle.Broadcast()
	}
}

// Testing hooks.
var (
	killSleep = time.Sleep
	exit      = os.Exit
)

var shutdown struct {
	mu       sync.Mutex
	sequence []*Handler
	once     sync.Once
}

var critical struct {
	mu       sync.Mutex
	idle     *sync.Cond // Broadcast when depth drops to zero.
	depth    int
	stopping bool
}

// deliver handles a terminating signal.
func deliver(sig os.Signal) {
	log.Error.Printf("shutdown: process received signal %v", sig)
	Now(1)
}

func init() {
	critical.idle = sync.NewCond(&critical.mu)
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGPIPE)
	go func() {
		for sig := range c {
			go deliver(sig)
		}
	}()
}
