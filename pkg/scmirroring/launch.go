package scmirroring

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/life-stream-dev/go-scmirroring/internal/dbusiface"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
)

// Launcher asks the system to start the miracast server for serverName.
type Launcher interface {
	Launch(ctx context.Context, serverName string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, serverName string) error

func (f LauncherFunc) Launch(ctx context.Context, serverName string) error {
	return f(ctx, serverName)
}

// DBusLauncher calls launch_method on the server's well-known bus name; bus
// activation spawns the process when it is not running yet.
type DBusLauncher struct {
	// Connect returns the bus connection; nil uses a private system bus connection.
	Connect func() (*dbus.Conn, error)
	Timeout time.Duration
}

func (l DBusLauncher) Launch(ctx context.Context, serverName string) error {
	connect := l.Connect
	if connect == nil {
		connect = func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() }
	}
	conn, err := connect()
	if err != nil {
		return wrap(ErrorInvalidOperation, "connect system bus: %v", err)
	}
	defer conn.Close()

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	obj := conn.Object(dbusiface.BusName(serverName), dbusiface.ObjectPath(serverName))
	method := dbusiface.InterfaceName(serverName) + "." + dbusiface.MethodLaunch
	logger.DebugF("[src] Calling %s on %s", method, obj.Path())
	if call := obj.CallWithContext(ctx, method, 0); call.Err != nil {
		return wrap(ErrorInvalidOperation, "%s: %v", method, call.Err)
	}
	return nil
}
