package rtspsink

import (
	"errors"
	"testing"

	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/life-stream-dev/go-scmirroring/internal/media"
)

func playerCode(err error) media.PlayerErrorCode {
	var pe *media.PlayerError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return media.PlayerErrNone
}

func TestLifecycleGuards(t *testing.T) {
	p := New()
	var seen []media.PlayerState
	p.SetMessageCallback(func(_ error, s media.PlayerState) { seen = append(seen, s) })

	if code := playerCode(p.Start()); code != media.PlayerErrInvalidState {
		t.Errorf("Start before connect: code %v", code)
	}
	if code := playerCode(p.Connect("rtsp://127.0.0.1:1/x")); code != media.PlayerErrInvalidState {
		t.Errorf("Connect before prepare: code %v", code)
	}
	if err := p.Prepare(); err != nil {
		t.Fatal(err)
	}
	if code := playerCode(p.Prepare()); code != media.PlayerErrInvalidState {
		t.Errorf("double Prepare: code %v", code)
	}
	if code := playerCode(p.Connect("::not a url")); code != media.PlayerErrInvalidArgument {
		t.Errorf("bad uri: code %v", code)
	}
	if err := p.Unprepare(); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != media.PlayerStatePrepared || seen[1] != media.PlayerStateNull {
		t.Errorf("unexpected state sequence %v", seen)
	}
	if _, err := p.Negotiated(); playerCode(err) != media.PlayerErrNotInitialized {
		t.Errorf("Negotiated before connect: %v", err)
	}
}

func TestSetters(t *testing.T) {
	p := New()
	if code := playerCode(p.SetDisplay(media.DisplayKind(7), nil)); code != media.PlayerErrInvalidAttrType {
		t.Errorf("SetDisplay code %v", code)
	}
	if err := p.SetDisplay(media.DisplayEvas, "surface"); err != nil {
		t.Error(err)
	}
	if code := playerCode(p.SetResolution(media.ResolutionMax)); code != media.PlayerErrOutOfRange {
		t.Errorf("SetResolution code %v", code)
	}
}

func TestNegotiate(t *testing.T) {
	desc := &description.Session{Medias: []*description.Media{
		{Type: description.MediaTypeVideo, Formats: []format.Format{&format.MPEGTS{}}},
		{Type: description.MediaTypeAudio, Formats: []format.Format{&format.LPCM{PayloadTyp: 97, BitDepth: 16, SampleRate: 48000, ChannelCount: 2}}},
	}}
	n := negotiate(desc, media.Resolution1280x720P30)
	expect := media.Negotiated{
		VideoCodec: "H264", VideoWidth: 1280, VideoHeight: 720, VideoFrameRate: 30,
		AudioCodec: "LPCM", AudioChannels: 2, AudioSampleRate: 48000, AudioBitWidth: 16,
	}
	if n != expect {
		t.Errorf("negotiate = %+v, expect %+v", n, expect)
	}
}
