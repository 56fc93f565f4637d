// internal/supervisor/find_linux.go
//go:build linux

package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FindProcess walks /proc. Entries that vanish or cannot be read are skipped, so no
// elevated privileges are needed.
func (n *native) FindProcess(ctx context.Context, name, cmdlineSubstr string) (Handle, bool, error) {
	entries, err := os.ReadDir(n.procRoot)
	if err != nil {
		return Handle{}, false, fmt.Errorf("read %s: %w", n.procRoot, err)
	}
	self := os.Getpid()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return Handle{}, false, err
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		dir := filepath.Join(n.procRoot, e.Name())
		if isZombie(dir) {
			continue
		}

		if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
			if strings.EqualFold(strings.TrimSpace(string(comm)), name) {
				return Handle{PID: pid, Name: name}, true, nil
			}
		}

		if cmdlineSubstr == "" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, "cmdline"))
		if err != nil || len(raw) == 0 {
			continue
		}
		// Only argv[0] is compared: tools such as "tail -f /tmp/kolosal-server.log"
		// mention the name in their arguments without being the server.
		args := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
		if strings.Contains(args[0], cmdlineSubstr) {
			return Handle{PID: pid, Name: filepath.Base(args[0])}, true, nil
		}
	}
	return Handle{}, false, nil
}

// isZombie reports whether /proc/<pid>/stat shows state Z.
func isZombie(dir string) bool {
	stat, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return false
	}
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 || i+2 >= len(stat) {
		return false
	}
	return stat[i+2] == 'Z'
}
