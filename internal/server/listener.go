package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"golang.org/x/sys/unix"
)

type listenOptions struct {
	path          string
	mode          os.FileMode
	group         string
	retries       int
	retryInterval time.Duration
}

// listenUnix binds the command socket, retrying while the path is busy, and
// relaxes its permissions so a less privileged client can connect.
func listenUnix(opts listenOptions) (*net.UnixListener, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.Unlink(opts.path); err != nil && !errors.Is(err, unix.ENOENT) {
		logger.WarnF("[server] unlink %s: %v", opts.path, err)
	}

	retries := opts.retries
	if retries <= 0 {
		retries = 1
	}
	addr := &unix.SockaddrUnix{Name: opts.path}
	for i := 0; ; i++ {
		err = unix.Bind(fd, addr)
		if err == nil {
			break
		}
		if i+1 >= retries {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("bind %s after %d tries: %w", opts.path, retries, err)
		}
		logger.WarnF("[server] bind %s failed (%v), retry %d/%d", opts.path, err, i+1, retries)
		time.Sleep(opts.retryInterval)
	}

	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	if err := os.Chmod(opts.path, opts.mode); err != nil {
		logger.WarnF("[server] chmod %s: %v", opts.path, err)
	}
	if opts.group != "" {
		if err := chownGroup(opts.path, opts.group); err != nil {
			logger.WarnF("[server] chown %s: %v", opts.path, err)
		}
	}

	f := os.NewFile(uintptr(fd), opts.path)
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("file listener: %w", err)
	}
	unixLn, ok := ln.(*net.UnixListener)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("unexpected listener type %T", ln)
	}
	// the path is ours to remove on Close
	unixLn.SetUnlinkOnClose(true)
	return unixLn, nil
}

func chownGroup(path, group string) error {
	g, err := user.LookupGroup(group)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return err
	}
	return os.Chown(path, -1, gid)
}

// peerCredentials returns the pid/uid/gid of the process on the other end.
func peerCredentials(conn net.Conn) (*unix.Ucred, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("not a unix connection: %T", conn)
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, err
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, err
	}
	return cred, credErr
}
