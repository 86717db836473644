package util

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
)

const (
	// ListenFdsEnvKey carries the number of sockets passed by a socket-activating supervisor.
	ListenFdsEnvKey = "LISTEN_FDS"
	// ListenPidEnvKey names the process the sockets are meant for.
	ListenPidEnvKey = "LISTEN_PID"
	// listenFdsStart is the first inherited descriptor; 0-2 are stdio.
	listenFdsStart = 3
)

// ParseListenFDs interprets LISTEN_PID/LISTEN_FDS values for the process pid
// and returns the inherited descriptor numbers. Sockets addressed to another
// process, or no sockets at all, yield an empty result.
func ParseListenFDs(pidValue, fdsValue string, pid int) ([]uintptr, error) {
	if fdsValue == "" {
		return nil, nil
	}
	if pidValue != "" {
		target, err := strconv.Atoi(pidValue)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", ListenPidEnvKey, pidValue, err)
		}
		if target != pid {
			return nil, nil
		}
	}
	n, err := strconv.Atoi(fdsValue)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", ListenFdsEnvKey, fdsValue, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid negative %s value: %d", ListenFdsEnvKey, n)
	}
	fds := make([]uintptr, n)
	for i := range fds {
		fds[i] = uintptr(listenFdsStart + i)
	}
	return fds, nil
}

// InheritedListeners returns the listening sockets handed over by a supervisor
// (systemd socket activation semantics), or nil when there are none.
func InheritedListeners() ([]net.Listener, error) {
	fds, err := ParseListenFDs(os.Getenv(ListenPidEnvKey), os.Getenv(ListenFdsEnvKey), os.Getpid())
	if err != nil || len(fds) == 0 {
		return nil, err
	}
	// Children of this process must not inherit the sockets again.
	os.Unsetenv(ListenPidEnvKey)
	os.Unsetenv(ListenFdsEnvKey)

	listeners := make([]net.Listener, 0, len(fds))
	for _, fd := range fds {
		l, err := NewListenerFromFD(fd)
		if err != nil {
			for _, opened := range listeners {
				opened.Close()
			}
			return nil, err
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// NewListenerFromFD creates a net.Listener from an inherited file descriptor.
func NewListenerFromFD(fd uintptr) (net.Listener, error) {
	file := os.NewFile(fd, fmt.Sprintf("listener-from-fd-%d", fd))
	if file == nil {
		return nil, fmt.Errorf("invalid file descriptor %d", fd)
	}
	// net.FileListener dups the descriptor, so the original is closed either way.
	defer file.Close()
	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("net.FileListener failed for FD %d: %w", fd, err)
	}
	return listener, nil
}

// CreateListener listens on address. An address already in use is reported
// with a dedicated message.
func CreateListener(network, address string) (net.Listener, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("unsupported network type: %s, only 'tcp', 'tcp4', or 'tcp6' are supported for CreateListener", network)
	}
	l, err := net.Listen(network, address)
	if err != nil {
		if IsAddrInUse(err) {
			return nil, fmt.Errorf("address %s is already in use: %w", address, err)
		}
		return nil, fmt.Errorf("failed to listen on %s %s: %w", network, address, err)
	}
	return l, nil
}

// IsAddrInUse checks if the error indicates an "address already in use" condition.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}
