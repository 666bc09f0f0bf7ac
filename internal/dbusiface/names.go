// Package dbusiface holds the system bus surface of the miracast server:
// well-known names, the exported server object and the status signal.
package dbusiface

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	DefaultServerName = "scmirroring"

	MethodLaunch        = "launch_method"
	MethodGetStatus     = "get_miracast_wfd_source_status"
	SignalStatusChanged = "miracast_wfd_source_status_changed"
)

// BusName is also the interface name of the server object.
func BusName(serverName string) string {
	if serverName == "" {
		serverName = DefaultServerName
	}
	return fmt.Sprintf("org.tizen.%s.server", serverName)
}

func ObjectPath(serverName string) dbus.ObjectPath {
	if serverName == "" {
		serverName = DefaultServerName
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/tizen/%s/server", serverName))
}

func InterfaceName(serverName string) string {
	return BusName(serverName)
}
