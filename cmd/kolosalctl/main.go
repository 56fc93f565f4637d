// cmd/kolosalctl/main.go
package main

import (
	"os"

	kolosalctl "github.com/mwiater/kolosalctl/internal/commands"
)

// Populated by -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = kolosalctl.SetVersionInfo
	executeCmd     = kolosalctl.Execute
	exit           = os.Exit
)

// main hands control to the cobra root command and exits non-zero when it fails.
// Execute has already printed the error.
func main() {
	setVersionInfo(version, commit, date)
	if err := executeCmd(); err != nil {
		exit(1)
	}
}
