// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cvs.io/entries"
	"cvs.io/errors"
	"cvs.io/ignore"
	"cvs.io/log"
	"cvs.io/protocol"
	"cvs.io/repository"
	"cvs.io/version"
)

func rootRequest(s *Session, args string) error {
	const op errors.Op = "server.Root"
	if !filepath.IsAbs(args) {
		return errors.E(op, errors.Path(args), errors.Protocol, errors.Str("root is not an absolute path"))
	}
	root := filepath.Clean(args)
	if s.cfg.Root != "" && root != filepath.Clean(s.cfg.Root) {
		return errors.E(op, errors.Path(args), errors.Protocol, errors.Str("root is not served here"))
	}
	if s.repo != nil {
		if s.repo.Root() != root {
			return errors.E(op, errors.Path(args), errors.Protocol, errors.Errorf("root conflicts with %s", s.repo.Root()))
		}
		return nil
	}
	repo, err := repository.Open(root)
	if err != nil {
		return errors.E(op, errors.Protocol, err)
	}
	s.repo = repo
	s.ignore = ignore.New()
	if err := s.ignore.AddFile(filepath.Join(root, repository.AdminDir, "cvsignore")); err != nil {
		log.Debug.Printf("server: %v", err)
	}
	return nil
}

func validResponses(s *Session, args string) error {
	s.responses = protocol.ParseSet(args)
	if missing := s.responses.Missing(protocol.Responses); len(missing) > 0 {
		return errors.E(errors.Op("server.Valid-responses"), errors.Protocol,
			errors.Errorf("client does not support required responses: %s", strings.Join(missing, " ")))
	}
	return nil
}

func validRequests(s *Session, args string) error {
	var names []string
	for _, r := range protocol.Requests {
		if req, ok := requests[r.Name]; ok && req.Handler != nil {
			names = append(names, r.Name)
		}
	}
	s.send("Valid-requests", strings.Join(names, " "))
	return nil
}

// directory handles the Directory request, whose second line names the
// repository directory corresponding to the local directory args.
func directory(s *Session, args string) error {
	const op errors.Op = "server.Directory"
	repoLine, err := s.conn.ReadLine()
	if err == io.EOF {
		return errors.E(op, errors.Protocol, errors.Str("end of input reading repository line"))
	}
	if err != nil {
		return errors.E(op, err)
	}
	local := path.Clean(args)
	if path.IsAbs(local) {
		return errors.E(op, errors.Path(args), errors.Protocol, errors.Str("absolute local directory"))
	}
	dots := 0
	for _, elem := range strings.Split(local, "/") {
		if elem == ".." {
			dots++
		}
	}
	if dots > s.maxDotDot {
		return errors.E(op, errors.Path(args), errors.Protocol, errors.Str("directory leaves the working directory"))
	}
	dir, err := s.relative(repoLine)
	if err != nil {
		return errors.E(op, err)
	}
	s.cur = s.dir(local, dir)
	return nil
}

// relative returns the repository directory named by the absolute path p,
// relative to the repository root.
func (s *Session) relative(p string) (string, error) {
	root := filepath.ToSlash(s.repo.Root())
	clean := path.Clean(strings.TrimSuffix(p, "/"))
	switch {
	case clean == root:
		return ".", nil
	case strings.HasPrefix(clean, root+"/"):
		rel := strings.TrimPrefix(clean, root+"/")
		for _, elem := range strings.Split(rel, "/") {
			if elem == ".." {
				return "", errors.E(errors.Path(p), errors.Protocol, errors.Str("directory leaves the repository"))
			}
		}
		return rel, nil
	}
	return "", errors.E(errors.Path(p), errors.Protocol, errors.Errorf("directory not within root %s", root))
}

func maxDotDot(s *Session, args string) error {
	n, err := strconv.Atoi(args)
	if err != nil || n < 0 {
		return errors.E(errors.Op("server.Max-dotdot"), errors.Protocol, errors.Errorf("bad count %q", args))
	}
	s.maxDotDot = n
	return nil
}

func staticDirectory(s *Session, args string) error {
	s.cur.static = true
	return nil
}

func sticky(s *Session, args string) error {
	if args == "" || !strings.ContainsAny(args[:1], "TND") {
		return errors.E(errors.Op("server.Sticky"), errors.Protocol, errors.Errorf("bad sticky tag %q", args))
	}
	s.cur.sticky = args
	return nil
}

func entry(s *Session, args string) error {
	e, err := entries.Parse(args)
	if err != nil {
		return errors.E(errors.Op("server.Entry"), errors.Protocol, err)
	}
	if e.Dir {
		return nil
	}
	s.cur.file(e.Name).entry = e
	return nil
}

func kopt(s *Session, args string) error {
	if !strings.HasPrefix(args, "-k") {
		return errors.E(errors.Op("server.Kopt"), errors.Protocol, errors.Errorf("bad option %q", args))
	}
	s.kopt = args
	return nil
}

func checkinTime(s *Session, args string) error {
	t, err := parseDate(args)
	if err != nil {
		return errors.E(errors.Op("server.Checkin-time"), errors.Protocol, err)
	}
	s.checkin = t
	return nil
}

// checkName verifies that a file named in a request is a plain name.
func checkName(op errors.Op, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return errors.E(op, errors.Path(name), errors.Protocol, errors.Str("bad file name"))
	}
	return nil
}

func modified(s *Session, args string) error {
	const op errors.Op = "server.Modified"
	if err := checkName(op, args); err != nil {
		return err
	}
	mode, data, err := s.conn.ReceiveFile()
	if err != nil {
		return errors.E(op, errors.Path(args), err)
	}
	f := s.cur.file(args)
	f.present, f.modified, f.haveData = true, true, true
	f.data, f.mode = data, mode
	f.kopt, f.checkin = s.kopt, s.checkin
	s.kopt, s.checkin = "", time.Time{}
	return nil
}

func isModified(s *Session, args string) error {
	const op errors.Op = "server.Is-modified"
	if err := checkName(op, args); err != nil {
		return err
	}
	f := s.cur.file(args)
	f.present, f.modified = true, true
	return nil
}

func unchanged(s *Session, args string) error {
	const op errors.Op = "server.Unchanged"
	if err := checkName(op, args); err != nil {
		return err
	}
	s.cur.file(args).present = true
	return nil
}

func questionable(s *Session, args string) error {
	const op errors.Op = "server.Questionable"
	if err := checkName(op, args); err != nil {
		return err
	}
	s.cur.questionable = append(s.cur.questionable, args)
	return nil
}

func caseInsensitive(s *Session, args string) error {
	log.Debug.Printf("server: client file names are case insensitive")
	return nil
}

func argument(s *Session, args string) error {
	s.args = append(s.args, args)
	return nil
}

func argumentx(s *Session, args string) error {
	if len(s.args) == 0 {
		return errors.E(errors.Op("server.Argumentx"), errors.Protocol, errors.Str("no argument to extend"))
	}
	s.args[len(s.args)-1] += "\n" + args
	return nil
}

func globalOption(s *Session, args string) error {
	switch args {
	case "-q", "-Q":
		s.quiet = true
	case "-n":
		s.noexec = true
	case "-l":
		s.noLog = true
	case "-r":
		s.readOnly = true
	case "-t":
		if s.conn.Trace == nil {
			s.conn.Trace = log.Debug
		}
	default:
		return errors.E(errors.Op("server.Global_option"), errors.Protocol, errors.Errorf("bad global option %q", args))
	}
	return nil
}

func set(s *Session, args string) error {
	i := strings.IndexByte(args, '=')
	if i <= 0 {
		return errors.E(errors.Op("server.Set"), errors.Protocol, errors.Errorf("bad variable setting %q", args))
	}
	s.vars[args[:i]] = args[i+1:]
	return nil
}

func useUnchanged(s *Session, args string) error {
	s.useUnchanged = true
	return nil
}

func expandModules(s *Session, args string) error {
	for _, m := range s.args {
		dir, err := s.repo.ExpandModule(m)
		if err != nil {
			s.e("cvs checkout: cannot find module `%s' - ignored", m)
			dir = m
		}
		s.send("Module-expansion", dir)
	}
	return nil
}

func noop(s *Session, args string) error {
	return nil
}

func versionRequest(s *Session, args string) error {
	s.m("%s", version.Short())
	return nil
}

func initRequest(s *Session, args string) error {
	const op errors.Op = "server.init"
	if !filepath.IsAbs(args) {
		return errors.E(op, errors.Path(args), errors.Invalid, errors.Str("repository root must be an absolute path"))
	}
	if s.cfg.Root != "" && filepath.Clean(args) != filepath.Clean(s.cfg.Root) {
		return errors.E(op, errors.Path(args), errors.Permission, errors.Str("root is not served here"))
	}
	if s.noexec {
		return nil
	}
	if _, err := repository.Init(args); err != nil {
		return errors.E(op, err)
	}
	return nil
}
