// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config creates a client or server configuration from various sources.
package config // import "cvs.io/config"

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"

	"cvs.io/errors"
	"cvs.io/log"
)

// Config holds the settings shared by the cvs client and server.
// A Config is a value; the Set methods return modified copies.
type Config struct {
	root       string
	rsh        string
	server     string
	lockWait   time.Duration
	lockStale  time.Duration
	logLevel   string
	umask      os.FileMode
	ignore     []string
	readOnly   bool
	sshKey     string
	knownHosts string
}

// Known keys. All others are treated as errors.
const (
	cvsroot    = "cvsroot"
	rsh        = "rsh"
	server     = "server"
	lockwait   = "lockwait"
	lockstale  = "lockstale"
	loglevel   = "loglevel"
	umask      = "umask"
	ignore     = "ignore"
	readonly   = "readonly"
	sshkey     = "sshkey"
	knownhosts = "knownhosts"
)

var (
	defaultRsh      = "ssh"
	defaultServer   = "cvs server"
	defaultLockWait = 30 * time.Second
	defaultUmask    = os.FileMode(0002)
)

// New returns a config with all fields set as defaults.
func New() Config {
	return Config{
		rsh:      defaultRsh,
		server:   defaultServer,
		lockWait: defaultLockWait,
		logLevel: "info",
		umask:    defaultUmask,
	}
}

// Root returns the CVSROOT string, which may be empty.
func (c Config) Root() string { return c.root }

// Rsh returns the remote shell command used by the ext method.
func (c Config) Rsh() string { return c.rsh }

// Server returns the command that starts a server on the remote side.
func (c Config) Server() string { return c.server }

// LockWait returns the interval between attempts to take a contended lock.
func (c Config) LockWait() time.Duration { return c.lockWait }

// LockStale returns the age after which an abandoned lock may be
// reclaimed. Zero means locks are never reclaimed.
func (c Config) LockStale() time.Duration { return c.lockStale }

// LogLevel returns the configured logging level.
func (c Config) LogLevel() string { return c.logLevel }

// Umask returns the permission bits cleared from files the server creates.
func (c Config) Umask() os.FileMode { return c.umask }

// Ignore returns additional ignore patterns.
func (c Config) Ignore() []string { return c.ignore }

// ReadOnly reports whether checked-out files should be read-only.
func (c Config) ReadOnly() bool { return c.readOnly }

// SSHKey returns the private key file used by the ssh method.
func (c Config) SSHKey() string { return c.sshKey }

// KnownHosts returns the known_hosts file used by the ssh method.
func (c Config) KnownHosts() string { return c.knownHosts }

// SetRoot returns a copy of c with the CVSROOT set.
func (c Config) SetRoot(root string) Config {
	c.root = root
	return c
}

// SetRsh returns a copy of c with the remote shell command set.
func (c Config) SetRsh(cmd string) Config {
	c.rsh = cmd
	return c
}

// SetServer returns a copy of c with the remote server command set.
func (c Config) SetServer(cmd string) Config {
	c.server = cmd
	return c
}

// SetLockWait returns a copy of c with the lock retry interval set.
func (c Config) SetLockWait(d time.Duration) Config {
	c.lockWait = d
	return c
}

// SetLockStale returns a copy of c with the stale lock age set.
func (c Config) SetLockStale(d time.Duration) Config {
	c.lockStale = d
	return c
}

// SetReadOnly returns a copy of c with read-only checkouts set.
func (c Config) SetReadOnly(ro bool) Config {
	c.readOnly = ro
	return c
}

// FromFile initializes a config using the given file. If the file cannot
// be opened but the name can be found in $HOME/.cvs, that file is used.
// A missing default file is not an error; the defaults are returned.
func FromFile(name string) (Config, error) {
	const op errors.Op = "config.FromFile"
	f, err := os.Open(name)
	if err != nil && !filepath.IsAbs(name) && os.IsNotExist(err) {
		// It's a local name, so, try adding $HOME/.cvs
		if home, errHome := Homedir(); errHome == nil {
			f, err = os.Open(filepath.Join(home, ".cvs", name))
		}
	}
	if os.IsNotExist(err) {
		log.Debug.Printf("%s: %s not found; using defaults", op, name)
		return InitConfig(strings.NewReader(""))
	}
	if err != nil {
		return Config{}, errors.E(op, errors.Path(name), err)
	}
	defer f.Close()
	return InitConfig(f)
}

// InitConfig returns a config generated from a configuration file and
// environment variables.
//
// A configuration file is YAML of the form
//
//	cvsroot: :ext:anoncvs@cvs.example.org:/cvs
//	rsh: ssh -x
//	lockwait: 30s
//	ignore:
//	  - "*.tmp"
//
// where key may be one of cvsroot, rsh, server, lockwait, lockstale,
// loglevel, umask, ignore, readonly, sshkey or knownhosts.
//
// The conventional CVS environment variables override values in the file:
// CVSROOT, CVS_RSH, CVS_SERVER, CVSUMASK, CVSREAD and CVSIGNORE
// (whitespace-separated patterns appended to ignore).
func InitConfig(r io.Reader) (Config, error) {
	const op errors.Op = "config.InitConfig"
	cfg := New()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return Config{}, errors.E(op, errors.IO, err)
	}
	vals := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &vals); err != nil {
		return Config{}, errors.E(op, errors.Invalid, errors.Errorf("parsing YAML file: %v", err))
	}
	for k, v := range vals {
		if err := cfg.set(k, v); err != nil {
			return Config{}, errors.E(op, err)
		}
	}

	env := map[string]string{
		"CVSROOT":    cvsroot,
		"CVS_RSH":    rsh,
		"CVS_SERVER": server,
		"CVSUMASK":   umask,
	}
	for name, key := range env {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := cfg.set(key, v); err != nil {
				return Config{}, errors.E(op, errors.Errorf("$%s: %v", name, err))
			}
		}
	}
	if _, ok := os.LookupEnv("CVSREAD"); ok {
		cfg.readOnly = true
	}
	if v := os.Getenv("CVSIGNORE"); v != "" {
		cfg.ignore = append(cfg.ignore, strings.Fields(v)...)
	}
	return cfg, nil
}

// set assigns the value of one configuration key.
func (c *Config) set(key string, v interface{}) error {
	s, err := asString(v)
	if key != ignore && err != nil {
		return errors.E(errors.Invalid, errors.Errorf("%q: %v", key, err))
	}
	switch key {
	case cvsroot:
		c.root = s
	case rsh:
		c.rsh = s
	case server:
		c.server = s
	case lockwait, lockstale:
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return errors.E(errors.Invalid, errors.Errorf("%q: bad duration %q", key, s))
		}
		if key == lockwait {
			c.lockWait = d
		} else {
			c.lockStale = d
		}
	case loglevel:
		c.logLevel = s
	case umask:
		if n, ok := v.(int); ok {
			// YAML reads a leading zero as octal already.
			s = strconv.FormatInt(int64(n), 8)
		}
		m, err := strconv.ParseUint(s, 8, 32)
		if err != nil || m > 0777 {
			return errors.E(errors.Invalid, errors.Errorf("%q: bad umask %q", key, s))
		}
		c.umask = os.FileMode(m)
	case readonly:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return errors.E(errors.Invalid, errors.Errorf("%q: %v", key, err))
		}
		c.readOnly = b
	case sshkey:
		c.sshKey = s
	case knownhosts:
		c.knownHosts = s
	case ignore:
		list, ok := v.([]interface{})
		if !ok {
			return errors.E(errors.Invalid, errors.Errorf("%q: want a list of patterns", key))
		}
		for _, p := range list {
			ps, err := asString(p)
			if err != nil {
				return errors.E(errors.Invalid, errors.Errorf("%q: %v", key, err))
			}
			c.ignore = append(c.ignore, ps)
		}
	default:
		return errors.E(errors.Invalid, errors.Errorf("unrecognized key %q", key))
	}
	return nil
}

// asString tries to convert a value back into its original string. This will not
// always be possible but should be for all our expected use cases.
func asString(v interface{}) (string, error) {
	switch vc := v.(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
		return fmt.Sprintf("%v", vc), nil
	case string:
		return vc, nil
	}
	return "", errors.E(errors.Invalid, errors.Errorf("unrecognized value %T", v))
}

// Homedir returns the home directory of the OS' logged-in user.
func Homedir() (string, error) {
	h, err := os.UserHomeDir()
	if err != nil || h == "" {
		return "", errors.E(errors.NotExist, errors.Str("user home directory not found"))
	}
	return h, nil
}
