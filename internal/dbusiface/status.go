package dbusiface

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
)

// Status is the on/off state of the WFD source published on the bus.
type Status int32

const (
	StatusOff Status = 0
	StatusOn  Status = 1
)

func (s Status) String() string {
	if s == StatusOn {
		return "On"
	}
	return "Off"
}

// Signaler is satisfied by *dbus.Conn.
type Signaler interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

type StatusPublisher struct {
	mu     sync.Mutex
	status Status
	sig    Signaler
	path   dbus.ObjectPath
	member string
}

func NewStatusPublisher(sig Signaler, serverName string) *StatusPublisher {
	return &StatusPublisher{
		status: StatusOff,
		sig:    sig,
		path:   ObjectPath(serverName),
		member: InterfaceName(serverName) + "." + SignalStatusChanged,
	}
}

// Emit broadcasts a status change. Repeating the cached status sends nothing.
// The cached value only moves once the signal has been sent.
func (p *StatusPublisher) Emit(status Status) error {
	if status != StatusOn && status != StatusOff {
		return fmt.Errorf("invalid server status %d", status)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == status {
		logger.DebugF("[dbus] The server status is not changed, status [%d]", status)
		return nil
	}
	if p.sig == nil {
		return fmt.Errorf("no bus connection to emit %s", SignalStatusChanged)
	}
	if err := p.sig.Emit(p.path, p.member, int32(status)); err != nil {
		return fmt.Errorf("emit %s: %w", SignalStatusChanged, err)
	}
	logger.DebugF("[dbus] sending miracast server status [%s] success", status)
	p.status = status
	return nil
}

func (p *StatusPublisher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
