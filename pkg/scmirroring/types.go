// Package scmirroring exposes the Wi-Fi Display (Miracast) screen mirroring
// source and sink handles.
package scmirroring

import "fmt"

// State is the source-role lifecycle reported through the state callback.
type State int

const (
	StateNull State = iota
	StateReady
	StateConnectionWait
	StateConnected
	StatePlaying
	StatePaused
	StateTeardown
	StateNone
)

var stateNames = map[State]string{
	StateNull:           "NULL",
	StateReady:          "READY",
	StateConnectionWait: "CONNECTION_WAIT",
	StateConnected:      "CONNECTED",
	StatePlaying:        "PLAYING",
	StatePaused:         "PAUSED",
	StateTeardown:       "TEARDOWN",
	StateNone:           "NONE",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SinkState is the sink-role lifecycle.
type SinkState int

const (
	SinkStateNone SinkState = iota
	SinkStateNull
	SinkStatePrepared
	SinkStateConnected
	SinkStatePlaying
	SinkStatePaused
	SinkStateDisconnected
)

var sinkStateNames = map[SinkState]string{
	SinkStateNone:         "NONE",
	SinkStateNull:         "NULL",
	SinkStatePrepared:     "PREPARED",
	SinkStateConnected:    "CONNECTED",
	SinkStatePlaying:      "PLAYING",
	SinkStatePaused:       "PAUSED",
	SinkStateDisconnected: "DISCONNECTED",
}

func (s SinkState) String() string {
	if name, ok := sinkStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SinkState(%d)", int(s))
}

// Resolution is a bitmask of the resolutions offered to the sink.
type Resolution uint32

const (
	ResolutionUnknown      Resolution = 0
	Resolution1920x1080P30 Resolution = 1 << 0
	Resolution1280x720P30  Resolution = 1 << 1
	Resolution960x540P30   Resolution = 1 << 2
	Resolution864x480P30   Resolution = 1 << 3
	Resolution720x480P60   Resolution = 1 << 4
	Resolution640x480P60   Resolution = 1 << 5
	Resolution640x360P30   Resolution = 1 << 6
	ResolutionMax          Resolution = 128
)

func (r Resolution) valid() bool {
	return r >= Resolution1920x1080P30 && r < ResolutionMax
}

// ConnectionMode selects how the source reaches the sink.
type ConnectionMode int

const (
	ConnectionWifiDirect ConnectionMode = iota
	ConnectionModeMax
)

func (m ConnectionMode) valid() bool {
	return m >= ConnectionWifiDirect && m < ConnectionModeMax
}

// DisplayType selects the surface the sink renders to.
type DisplayType int

const (
	DisplayTypeOverlay DisplayType = iota
	DisplayTypeEvas
	DisplayTypeMax
)

// StateCallback receives every source state change on the reactor goroutine.
type StateCallback func(err Error, state State)

// SinkStateCallback receives sink state changes.
type SinkStateCallback func(err Error, state SinkState)
