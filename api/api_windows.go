//go:build windows

package api

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
	"github.com/fosrl/newt/logger"
)

// createSocketListener creates a Windows named pipe listener.
func createSocketListener(pipePath string) (net.Listener, error) {
	if pipePath[0] != '\\' {
		pipePath = `\\.\pipe\` + pipePath
	}

	config := &winio.PipeConfig{
		// Grant full access to Everyone (WD) and the owner (OW) so
		// unprivileged clients can query status.
		SecurityDescriptor: "D:(A;;GA;;;WD)(A;;GA;;;OW)",
	}

	listener, err := winio.ListenPipe(pipePath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on named pipe: %w", err)
	}

	logger.Debug("Created named pipe at %s", pipePath)
	return listener, nil
}

// cleanupSocket is a no-op on Windows; named pipes disappear with their
// last handle.
func cleanupSocket(pipePath string) {
	logger.Debug("Named pipe %s cleaned up automatically", pipePath)
}
