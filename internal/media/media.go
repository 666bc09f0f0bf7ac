// Package media declares the collaborators the miracast server and the sink
// facade drive: an RTSP/WFD media server and a WFD sink player.
package media

import (
	"errors"

	"github.com/life-stream-dev/go-scmirroring/internal/config"
)

// Trigger is a server-initiated request towards the connected sink.
type Trigger int

const (
	TriggerPause Trigger = iota + 1
	TriggerPlay
	TriggerTeardown
)

var triggerNames = map[Trigger]string{
	TriggerPause:    "PAUSE",
	TriggerPlay:     "PLAY",
	TriggerTeardown: "TEARDOWN",
}

func (t Trigger) String() string {
	return triggerNames[t]
}

// Settings is the session configuration accumulated through SET commands.
type Settings struct {
	IP              string
	Port            string
	ConnectionMode  int
	Resolution      uint32
	Multisink       bool
	DirectStreaming bool
	StreamingURI    string
}

// Events are raised from the media server's own goroutines.
type Events struct {
	OnClientConnected func(remote string)
	OnPlaying         func()
	OnPaused          func()
	OnTeardown        func()
}

var ErrNotStarted = errors.New("media server is not started")

// Server is one RTSP/WFD server instance with its media factory.
type Server interface {
	Start(settings Settings, events Events) error
	Trigger(t Trigger) error
	Close() error
}

// ServerFactory builds a fresh media server for each START.
type ServerFactory func(cfg config.MediaConfig) Server
