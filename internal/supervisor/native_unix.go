// internal/supervisor/native_unix.go
//go:build unix

package supervisor

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

const exeSuffix = ""

// Start launches the server in a new session so it survives the CLI exiting.
func (n *native) Start(ctx context.Context, spec StartSpec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	logFile, err := openServerLog(spec.LogPath)
	if err != nil {
		return Handle{}, err
	}
	defer logFile.Close()

	// Not CommandContext: the server must outlive ctx.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return Handle{}, err
	}

	pid := cmd.Process.Pid
	// Reap the child if it exits while we are still running so it never lingers as a
	// zombie that process discovery would match.
	go func() { _ = cmd.Wait() }()

	return Handle{PID: pid, Name: filepath.Base(spec.Path)}, nil
}

// Terminate sends SIGTERM. A process that no longer exists is already stopped.
func (n *native) Terminate(_ context.Context, h Handle) error {
	err := unix.Kill(h.PID, unix.SIGTERM)
	switch {
	case err == nil, errors.Is(err, unix.ESRCH):
		return nil
	case errors.Is(err, unix.EPERM):
		return &ProcessError{Kind: PermissionDenied, Path: h.Name, Err: err}
	default:
		return err
	}
}

func checkExecutable(path string, info fs.FileInfo) error {
	if info.Mode().Perm()&0o111 == 0 {
		return &ProcessError{Kind: NotExecutable, Path: path}
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
			return &ProcessError{Kind: PermissionDenied, Path: path, Err: err}
		}
		return &ProcessError{Kind: NotExecutable, Path: path, Err: err}
	}
	return nil
}
