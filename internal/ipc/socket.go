package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"
)

// ErrPeerCredentials is returned where the platform cannot identify the
// process on the other end of a socket.
var ErrPeerCredentials = errors.New("ipc: peer credentials not supported")

// PeerCredentials holds the credentials of a peer process
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// SetSocketPermissions sets the socket file permissions. Windows ignores
// the mode; access there follows the directory ACL.
func SetSocketPermissions(path string, mode os.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(path, mode)
}

// CleanupSocket removes a stale socket file
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// AF_UNIX sockets on Windows show up as reparse points, not ModeSocket.
	if info.Mode()&os.ModeSocket != 0 || (runtime.GOOS == "windows" && !info.IsDir()) {
		return os.Remove(path)
	}
	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening checks if a socket is already listening
func IsSocketListening(path string) bool {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
