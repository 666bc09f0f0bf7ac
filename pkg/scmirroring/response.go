package scmirroring

import "github.com/life-stream-dev/go-scmirroring/internal/protocol"

// tagStates maps a response tag onto the source state it reports.
var tagStates = map[protocol.Tag]State{
	protocol.TagListening: StateConnectionWait,
	protocol.TagConnected: StateConnected,
	protocol.TagPlaying:   StatePlaying,
	protocol.TagSet:       StateReady,
	protocol.TagPause:     StatePaused,
	protocol.TagResume:    StatePlaying,
	protocol.TagStop:      StateTeardown,
	protocol.TagDestroy:   StateNull,
}

func statusError(s protocol.Status) Error {
	if s == protocol.StatusFail {
		return ErrorInvalidOperation
	}
	return ErrorNone
}

// interpret turns one server response into the error and state it reports.
// ok is false for responses without a known tag.
func interpret(msg string) (err Error, state State, ok bool) {
	resp, parseErr := protocol.ParseResponse(msg)
	if parseErr != nil {
		return statusError(resp.Status), StateNone, false
	}
	return statusError(resp.Status), tagStates[resp.Tag], true
}
