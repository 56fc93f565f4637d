// internal/supervisor/find_unix_test.go
//go:build unix && !linux

package supervisor

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestArgv0Pattern verifies that the pgrep expression matches the server in the first
// word of a command line only.
func TestArgv0Pattern(t *testing.T) {
	re := regexp.MustCompile("(?i)" + argv0Pattern(ServerName, ServerName))

	assert.True(t, re.MatchString("/opt/bin/kolosal-server --port 9090"))
	assert.True(t, re.MatchString("./Kolosal-Server"))
	assert.False(t, re.MatchString("tail -f /tmp/kolosal-server.log"))
	assert.Equal(t, argv0Pattern(ServerName, ServerName), argv0Pattern(ServerName, ""))
}
