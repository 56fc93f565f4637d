// internal/supervisor/supervisor.go
// Package supervisor finds, launches and stops the local kolosal-server process.
// Everything OS specific sits behind Platform; Supervisor only composes it.
package supervisor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mwiater/kolosalctl/internal/logging"
)

// ServerName is the executable name (without extension) of the supervised server. It is
// also the substring matched against process command lines.
const ServerName = "kolosal-server"

// Handle identifies a running process.
type Handle struct {
	PID  int
	Name string
}

// StartSpec describes a detached launch.
type StartSpec struct {
	Path    string
	Args    []string
	Dir     string
	LogPath string
}

// Platform is the set of OS capabilities the supervisor needs.
type Platform interface {
	// FindProcess returns the first process whose executable name equals name
	// (case-insensitive) or whose executable path (argv[0]) contains cmdlineSubstr.
	FindProcess(ctx context.Context, name, cmdlineSubstr string) (Handle, bool, error)
	// Start launches spec detached from the caller's session and returns without waiting.
	Start(ctx context.Context, spec StartSpec) (Handle, error)
	// Terminate asks the process to exit. A process that is already gone is not an error.
	Terminate(ctx context.Context, h Handle) error
}

// Supervisor locates and manages the server executable.
type Supervisor struct {
	platform   Platform
	name       string
	logPath    string
	executable func() (string, error)
	lookPath   func(string) (string, error)
	stat       func(string) (fs.FileInfo, error)
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithLogPath sets where a spawned server's stdout and stderr go.
func WithLogPath(p string) Option { return func(s *Supervisor) { s.logPath = p } }

// WithExecutable overrides how the current executable is resolved.
func WithExecutable(fn func() (string, error)) Option {
	return func(s *Supervisor) { s.executable = fn }
}

// WithLookPath overrides the search-path lookup used as the last fallback.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(s *Supervisor) { s.lookPath = fn }
}

// New returns a Supervisor backed by p.
func New(p Platform, opts ...Option) *Supervisor {
	s := &Supervisor{
		platform:   p,
		name:       ServerName,
		logPath:    filepath.Join(os.TempDir(), ServerName+".log"),
		executable: os.Executable,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BinaryName is the server file name on this OS.
func (s *Supervisor) BinaryName() string { return s.name + exeSuffix }

// LocateExecutable resolves the server binary. Candidates, in order: the explicit
// path, a binary beside this executable, the nested build layout
// <dir>/kolosal-server/kolosal-server, and <dir>/../../server-bin/kolosal-server.
// The first regular file wins. Otherwise the bare name is resolved through PATH, and
// returned unverified if even that fails; found reports which case applied.
func (s *Supervisor) LocateExecutable(explicit string) (path string, found bool) {
	bin := s.BinaryName()
	log := logging.Logger()

	if explicit != "" {
		if s.isRegularFile(explicit) {
			return explicit, true
		}
		log.Warn().Str("path", explicit).Msg("configured server path does not exist, searching")
	}

	if exe, err := s.executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		dir := filepath.Dir(exe)
		candidates := []string{
			filepath.Join(dir, bin),
			filepath.Join(dir, s.name, bin),
			filepath.Join(filepath.Dir(filepath.Dir(dir)), "server-bin", bin),
		}
		for _, c := range candidates {
			if s.isRegularFile(c) {
				log.Debug().Str("path", c).Msg("found server binary")
				return c, true
			}
		}
	} else {
		log.Debug().Err(err).Msg("could not resolve own executable path")
	}

	if p, err := s.lookPath(bin); err == nil {
		return p, true
	}
	return bin, false
}

func (s *Supervisor) isRegularFile(p string) bool {
	info, err := s.stat(p)
	return err == nil && info.Mode().IsRegular()
}

// FindRunningInstance reports the running server process, if any.
func (s *Supervisor) FindRunningInstance(ctx context.Context) (*Handle, error) {
	h, ok, err := s.platform.FindProcess(ctx, s.BinaryName(), s.name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// Spawn verifies path and launches it detached, with its working directory set to the
// binary's directory and output appended to the server log. A bare name (no directory
// component) is left to the OS search path. Relative paths are made absolute first,
// since the child resolves its path against the working directory it is given.
func (s *Supervisor) Spawn(ctx context.Context, path string, args ...string) (Handle, error) {
	dir := "."
	if filepath.Base(path) != path {
		abs, err := filepath.Abs(path)
		if err != nil {
			return Handle{}, &ProcessError{Kind: SpawnFailed, Path: path, Err: err}
		}
		path = abs
		if err := s.verifyExecutable(path); err != nil {
			return Handle{}, err
		}
		dir = filepath.Dir(path)
	}

	h, err := s.platform.Start(ctx, StartSpec{Path: path, Args: args, Dir: dir, LogPath: s.logPath})
	if err != nil {
		var pe *ProcessError
		if errors.As(err, &pe) {
			return Handle{}, err
		}
		return Handle{}, classifyStartError(path, err)
	}
	logging.Logger().Info().Int("pid", h.PID).Str("path", path).Str("log", s.logPath).Msg("server process started")
	return h, nil
}

func (s *Supervisor) verifyExecutable(path string) error {
	info, err := s.stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &ProcessError{Kind: NotFound, Path: path, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &ProcessError{Kind: PermissionDenied, Path: path, Err: err}
	case err != nil:
		return &ProcessError{Kind: SpawnFailed, Path: path, Err: err}
	case info.IsDir():
		return &ProcessError{Kind: NotExecutable, Path: path, Err: errors.New("is a directory")}
	}
	return checkExecutable(path, info)
}

// Terminate stops h. A nil handle means nothing is running, which counts as stopped.
func (s *Supervisor) Terminate(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if err := s.platform.Terminate(ctx, *h); err != nil {
		var pe *ProcessError
		if errors.As(err, &pe) {
			return err
		}
		return &ProcessError{Kind: TerminateFailed, Path: h.Name, Err: err}
	}
	logging.Logger().Info().Int("pid", h.PID).Msg("server process signalled to stop")
	return nil
}

// Stop finds the running server and terminates it, returning the process it signalled.
// No running server is success with a nil handle.
func (s *Supervisor) Stop(ctx context.Context) (*Handle, error) {
	h, err := s.FindRunningInstance(ctx)
	if err != nil || h == nil {
		return nil, err
	}
	if err := s.Terminate(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func classifyStartError(path string, err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return &ProcessError{Kind: NotFound, Path: path, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &ProcessError{Kind: PermissionDenied, Path: path, Err: err}
	default:
		return &ProcessError{Kind: SpawnFailed, Path: path, Err: err}
	}
}
