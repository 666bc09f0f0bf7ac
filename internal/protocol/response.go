package protocol

import (
	"errors"
	"strings"
)

// Status 是响应中冒号前的结果部分
type Status byte

const (
	StatusUnknown Status = iota
	StatusOK
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFail:
		return "FAIL"
	}
	return "UNKNOWN"
}

// Tag 是响应中冒号后的标签部分
type Tag string

const (
	TagNone      Tag = ""
	TagListening Tag = "LISTENING"
	TagConnected Tag = "CONNECTED"
	TagPlaying   Tag = "PLAYING"
	TagSet       Tag = "SET"
	TagPause     Tag = "PAUSE"
	TagResume    Tag = "RESUME"
	TagStop      Tag = "STOP"
	TagDestroy   Tag = "DESTROY"
)

// TagPrecedence 是标签识别的顺序，第一个匹配的标签生效
var TagPrecedence = []Tag{
	TagListening,
	TagConnected,
	TagPlaying,
	TagSet,
	TagPause,
	TagResume,
	TagStop,
	TagDestroy,
}

type Response struct {
	Status Status
	Tag    Tag
}

var ErrUnknownTag = errors.New("unknown response tag")

func OK(tag Tag) Response   { return Response{Status: StatusOK, Tag: tag} }
func Fail(tag Tag) Response { return Response{Status: StatusFail, Tag: tag} }

func (r Response) String() string {
	return r.Status.String() + ":" + string(r.Tag)
}

// ParseResponse 解析 "<OK|FAIL>:<TAG>"。无法识别的标签返回 ErrUnknownTag，但状态部分仍然有效
func ParseResponse(msg string) (Response, error) {
	msg = strings.TrimSpace(msg)
	head, tail, found := strings.Cut(msg, ":")
	if !found {
		tail = msg
	}

	var r Response
	switch {
	case strings.Contains(head, "OK"):
		r.Status = StatusOK
	case strings.Contains(head, "FAIL"):
		r.Status = StatusFail
	}

	for _, tag := range TagPrecedence {
		if strings.Contains(tail, string(tag)) {
			r.Tag = tag
			return r, nil
		}
	}
	return r, ErrUnknownTag
}
