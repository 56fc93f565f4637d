// internal/supervisor/find_unix.go
//go:build unix && !linux

package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// FindProcess asks pgrep for a case-insensitive match on the first word of the command
// line, which covers both the executable name and the substring without matching
// processes that merely take the name as an argument.
func (n *native) FindProcess(ctx context.Context, name, cmdlineSubstr string) (Handle, bool, error) {
	out, err := exec.CommandContext(ctx, "pgrep", "-i", "-f", argv0Pattern(name, cmdlineSubstr)).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return Handle{}, false, nil
		}
		return Handle{}, false, err
	}

	self := os.Getpid()
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid == self {
			continue
		}
		return Handle{PID: pid, Name: name}, true, nil
	}
	return Handle{}, false, nil
}

// argv0Pattern builds the pgrep expression matching sub inside the first word only.
func argv0Pattern(name, sub string) string {
	if sub == "" {
		sub = name
	}
	return "^[^ ]*" + regexp.QuoteMeta(sub) + "[^ ]*( |$)"
}
