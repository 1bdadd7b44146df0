// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map"

	"cvs.io/errors"
	"cvs.io/log"
)

// Daemon serves sessions on network connections.
type Daemon struct {
	cfg      Config
	sessions cmap.ConcurrentMap
	next     uint64
}

// active is a registered session.
type active struct {
	session *Session
	conn    net.Conn
	cancel  context.CancelFunc
}

// NewDaemon returns a Daemon whose sessions use cfg.
func NewDaemon(cfg Config) *Daemon {
	return &Daemon{
		cfg:      cfg,
		sessions: cmap.New(),
	}
}

// Serve accepts connections on l and runs a session on each until ctx
// is done or l fails. It closes l before returning.
func (d *Daemon) Serve(ctx context.Context, l net.Listener) error {
	const op errors.Op = "server.Daemon.Serve"
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				log.Error.Printf("server: accept: %v", err)
				continue
			}
			return errors.E(op, errors.IO, err)
		}
		go d.serve(ctx, conn)
	}
}

func (d *Daemon) serve(ctx context.Context, conn net.Conn) {
	id := strconv.FormatUint(atomic.AddUint64(&d.next, 1), 10)
	ctx, cancel := context.WithCancel(ctx)
	s := NewSession(conn, conn, d.cfg)
	d.sessions.Set(id, &active{session: s, conn: conn, cancel: cancel})
	defer func() {
		d.sessions.Remove(id)
		cancel()
		conn.Close()
	}()
	log.Debug.Printf("server: session %s from %s", id, conn.RemoteAddr())
	if err := s.Serve(ctx); err != nil {
		log.Info.Printf("server: session %s: %v", id, err)
	}
}

// Count returns the number of sessions in progress.
func (d *Daemon) Count() int {
	return d.sessions.Count()
}

// Close ends every session in progress. Each session releases its
// locks as it ends.
func (d *Daemon) Close() {
	for t := range d.sessions.IterBuffered() {
		a := t.Val.(*active)
		a.cancel()
		a.conn.Close()
	}
}
