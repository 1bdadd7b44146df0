// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cvsd serves CVS repositories over TCP. Each connection is a
// client/server protocol session that names its repository with a Root
// request. The daemon does no authentication of its own; run it on a
// loopback address or behind a tunnel.
package main // import "cvs.io/cmd/cvsd"

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"cvs.io/config"
	"cvs.io/flags"
	"cvs.io/log"
	"cvs.io/server"
	"cvs.io/serverutil"
	"cvs.io/shutdown"
	"cvs.io/subcmd"
	"cvs.io/version"
)

// Connections from one host closer together than this are refused,
// the interval doubling up to maxBackoff while the host keeps trying.
const (
	backoff    = 10 * time.Millisecond
	maxBackoff = 5 * time.Second
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cvsd [flags]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(flags.Server)
	if flag.NArg() != 0 {
		flag.Usage()
	}

	cfg, err := config.FromFile(subcmd.Tilde(flags.Config))
	if err != nil {
		log.Fatal(err)
	}
	if lvl := cfg.LogLevel(); lvl != "" && flags.Log.String() == "info" {
		log.SetLevel(lvl)
	}
	if flags.Trace {
		log.SetLevel("debug")
	}

	scfg := server.Config{
		LockInterval: flags.LockWait,
		LockStale:    cfg.LockStale(),
	}
	if flags.Trace {
		scfg.Trace = log.Debug
	}
	d := server.NewDaemon(scfg)

	ln, err := net.Listen("tcp", flags.Addr)
	if err != nil {
		log.Fatal(err)
	}
	if !serverutil.IsLoopback(flags.Addr) {
		log.Info.Printf("cvsd: warning: listening on non-loopback address %s without authentication", flags.Addr)
	}
	if flags.MaxConn > 0 {
		ln = netutil.LimitListener(ln, flags.MaxConn)
	}
	ln = serverutil.RateLimitListener(ln, &serverutil.RateLimiter{Backoff: backoff, Max: maxBackoff})

	ctx, cancel := context.WithCancel(context.Background())
	shutdown.Handle(func() {
		cancel()
		d.Close()
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Serve(ctx, ln)
	})
	if flags.Metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: flags.Metrics, Handler: mux}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
		log.Info.Printf("cvsd: serving metrics on %s", flags.Metrics)
	}

	log.Info.Printf("cvsd: %s serving on %s", version.Short(), ln.Addr())
	if err := g.Wait(); err != nil {
		log.Error.Printf("cvsd: %v", err)
		shutdown.Now(1)
	}
	shutdown.Now(0)
}
