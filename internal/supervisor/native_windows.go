// internal/supervisor/native_windows.go
//go:build windows

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const exeSuffix = ".exe"

// FindProcess walks a Toolhelp32 snapshot and matches on the image name. Reading
// another process's command line needs PROCESS_VM_READ on its PEB, which an
// unelevated user often lacks, so the substring is only compared with the image name.
func (n *native) FindProcess(ctx context.Context, name, cmdlineSubstr string) (Handle, bool, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return Handle{}, false, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
			return Handle{}, false, nil
		}
		return Handle{}, false, fmt.Errorf("process snapshot: %w", err)
	}
	self := windows.GetCurrentProcessId()

	for {
		if err := ctx.Err(); err != nil {
			return Handle{}, false, err
		}
		exe := windows.UTF16ToString(entry.ExeFile[:])
		if entry.ProcessID != self {
			if strings.EqualFold(exe, name) ||
				(cmdlineSubstr != "" && strings.Contains(strings.ToLower(exe), strings.ToLower(cmdlineSubstr))) {
				return Handle{PID: int(entry.ProcessID), Name: exe}, true, nil
			}
		}
		if err := windows.Process32Next(snap, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				return Handle{}, false, nil
			}
			return Handle{}, false, fmt.Errorf("process snapshot: %w", err)
		}
	}
}

// Start launches the server detached from the console with a hidden window.
func (n *native) Start(ctx context.Context, spec StartSpec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	logFile, err := openServerLog(spec.LogPath)
	if err != nil {
		return Handle{}, err
	}
	defer logFile.Close()

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return Handle{}, &ProcessError{Kind: PermissionDenied, Path: spec.Path, Err: err}
		}
		return Handle{}, err
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return Handle{PID: pid, Name: filepath.Base(spec.Path)}, nil
}

// Terminate ends the process. Detached processes have no console to receive a
// graceful control event, so this is TerminateProcess.
func (n *native) Terminate(_ context.Context, h Handle) error {
	proc, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(h.PID))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return nil
		}
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return &ProcessError{Kind: PermissionDenied, Path: h.Name, Err: err}
		}
		return err
	}
	defer windows.CloseHandle(proc)
	return windows.TerminateProcess(proc, 0)
}

func checkExecutable(path string, _ fs.FileInfo) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe", ".com", ".bat", ".cmd":
		return nil
	default:
		return &ProcessError{Kind: NotExecutable, Path: path}
	}
}
