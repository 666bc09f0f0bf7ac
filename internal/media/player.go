package media

import "fmt"

// PlayerState is the sink player's own lifecycle.
type PlayerState int

const (
	PlayerStateNone PlayerState = iota
	PlayerStateNull
	PlayerStatePrepared
	PlayerStateConnected
	PlayerStatePlaying
	PlayerStatePaused
	PlayerStateDisconnected
)

var playerStateNames = map[PlayerState]string{
	PlayerStateNone:         "NONE",
	PlayerStateNull:         "NULL",
	PlayerStatePrepared:     "PREPARED",
	PlayerStateConnected:    "CONNECTED",
	PlayerStatePlaying:      "PLAYING",
	PlayerStatePaused:       "PAUSED",
	PlayerStateDisconnected: "DISCONNECTED",
}

func (s PlayerState) String() string {
	if name, ok := playerStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PlayerState(%d)", int(s))
}

// PlayerErrorCode classifies player failures.
type PlayerErrorCode int

const (
	PlayerErrNone PlayerErrorCode = iota
	PlayerErrNotInitialized
	PlayerErrInvalidArgument
	PlayerErrInvalidState
	PlayerErrInvalidAttrType
	PlayerErrInvalidPermission
	PlayerErrOutOfArray
	PlayerErrOutOfRange
	PlayerErrAttrNotExist
	PlayerErrConnection
	PlayerErrInternal
)

var playerErrNames = map[PlayerErrorCode]string{
	PlayerErrNone:              "none",
	PlayerErrNotInitialized:    "not initialized",
	PlayerErrInvalidArgument:   "invalid argument",
	PlayerErrInvalidState:      "invalid state",
	PlayerErrInvalidAttrType:   "invalid attribute type",
	PlayerErrInvalidPermission: "invalid permission",
	PlayerErrOutOfArray:        "out of array",
	PlayerErrOutOfRange:        "out of range",
	PlayerErrAttrNotExist:      "attribute does not exist",
	PlayerErrConnection:        "connection failed",
	PlayerErrInternal:          "internal error",
}

type PlayerError struct {
	Code PlayerErrorCode
	Err  error
}

func (e *PlayerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("player: %s: %v", playerErrNames[e.Code], e.Err)
	}
	return "player: " + playerErrNames[e.Code]
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

func NewPlayerError(code PlayerErrorCode, err error) *PlayerError {
	return &PlayerError{Code: code, Err: err}
}

type DisplayKind int

const (
	DisplayOverlay DisplayKind = iota
	DisplayEvas
)

// Negotiated holds the stream parameters agreed with the source.
type Negotiated struct {
	VideoCodec      string
	VideoWidth      int
	VideoHeight     int
	VideoFrameRate  int
	AudioCodec      string
	AudioChannels   int
	AudioSampleRate int
	AudioBitWidth   int
}

// Player is a WFD sink player. The message callback may be invoked from any goroutine.
type Player interface {
	Prepare() error
	Unprepare() error
	Connect(uri string) error
	Start() error
	Pause() error
	Resume() error
	Disconnect() error
	Destroy() error
	SetDisplay(kind DisplayKind, surface interface{}) error
	SetResolution(mask uint32) error
	SetMessageCallback(cb func(err error, state PlayerState))
	Negotiated() (Negotiated, error)
	State() PlayerState
}
