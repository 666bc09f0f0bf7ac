package dbusiface

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
)

// Service is the exported server object together with its status publisher.
type Service struct {
	conn       *dbus.Conn
	serverName string
	Publisher  *StatusPublisher
}

func introspectNode(serverName string) *introspect.Node {
	return &introspect.Node{
		Name: string(ObjectPath(serverName)),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: InterfaceName(serverName),
				Methods: []introspect.Method{
					{Name: MethodLaunch},
					{Name: MethodGetStatus, Args: []introspect.Arg{{Name: "status", Type: "i", Direction: "out"}}},
				},
				Signals: []introspect.Signal{
					{Name: SignalStatusChanged, Args: []introspect.Arg{{Name: "status", Type: "i"}}},
				},
			},
		},
	}
}

// methodTable maps bus method names onto the publisher.
func methodTable(p *StatusPublisher) map[string]interface{} {
	return map[string]interface{}{
		MethodLaunch: func() *dbus.Error {
			logger.Debug("[dbus] launch_method called")
			return nil
		},
		MethodGetStatus: func() (int32, *dbus.Error) {
			return int32(p.Status()), nil
		},
	}
}

// Export connects to the system bus, exports the server object and claims
// the well-known name.
func Export(serverName string) (*Service, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	svc, err := ExportOn(conn, serverName)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return svc, nil
}

func ExportOn(conn *dbus.Conn, serverName string) (*Service, error) {
	path := ObjectPath(serverName)
	iface := InterfaceName(serverName)
	publisher := NewStatusPublisher(conn, serverName)

	if err := conn.ExportMethodTable(methodTable(publisher), path, iface); err != nil {
		return nil, fmt.Errorf("export %s: %w", iface, err)
	}
	if err := conn.Export(introspect.NewIntrospectable(introspectNode(serverName)), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName(serverName), dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name %s: %w", BusName(serverName), err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", BusName(serverName))
	}
	logger.InfoF("[dbus] acquired %s at %s", BusName(serverName), path)

	return &Service{conn: conn, serverName: serverName, Publisher: publisher}, nil
}

func (s *Service) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.ReleaseName(BusName(s.serverName))
	return s.conn.Close()
}
