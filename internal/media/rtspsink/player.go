// Package rtspsink is the sink-side player: it pulls the source's stream
// with an RTSP client and reports its lifecycle through a message callback.
package rtspsink

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/media"
	"github.com/pion/rtp"
)

type Player struct {
	mu         sync.Mutex
	state      media.PlayerState
	client     *gortsplib.Client
	desc       *description.Session
	cb         func(err error, state media.PlayerState)
	display    media.DisplayKind
	surface    interface{}
	resolution uint32
	negotiated media.Negotiated
	timeout    time.Duration

	packets atomic.Uint64
	// OnPacket receives every RTP packet of the negotiated stream.
	OnPacket func(medi *description.Media, pkt *rtp.Packet)
}

func New() *Player {
	return &Player{state: media.PlayerStateNull, timeout: 10 * time.Second}
}

// SetTimeout bounds RTSP reads and writes of the next Connect.
func (p *Player) SetTimeout(d time.Duration) {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()
}

func errState(op string, state media.PlayerState) error {
	return media.NewPlayerError(media.PlayerErrInvalidState, fmt.Errorf("%s in state %s", op, state))
}

// setState must be called without p.mu held.
func (p *Player) setState(state media.PlayerState, err error) {
	p.mu.Lock()
	changed := p.state != state
	p.state = state
	cb := p.cb
	p.mu.Unlock()
	if cb != nil && (changed || err != nil) {
		cb(err, state)
	}
}

func (p *Player) State() media.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) SetMessageCallback(cb func(err error, state media.PlayerState)) {
	p.mu.Lock()
	p.cb = cb
	p.mu.Unlock()
}

func (p *Player) SetDisplay(kind media.DisplayKind, surface interface{}) error {
	if kind != media.DisplayOverlay && kind != media.DisplayEvas {
		return media.NewPlayerError(media.PlayerErrInvalidAttrType, fmt.Errorf("display type %d", kind))
	}
	p.mu.Lock()
	p.display, p.surface = kind, surface
	p.mu.Unlock()
	return nil
}

func (p *Player) SetResolution(mask uint32) error {
	if !media.ValidResolution(mask) {
		return media.NewPlayerError(media.PlayerErrOutOfRange, fmt.Errorf("resolution %#x", mask))
	}
	p.mu.Lock()
	p.resolution = mask
	p.mu.Unlock()
	return nil
}

func (p *Player) Prepare() error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != media.PlayerStateNull {
		return errState("prepare", state)
	}
	p.setState(media.PlayerStatePrepared, nil)
	return nil
}

func (p *Player) Unprepare() error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	switch state {
	case media.PlayerStatePrepared, media.PlayerStateDisconnected:
	default:
		return errState("unprepare", state)
	}
	p.setState(media.PlayerStateNull, nil)
	return nil
}

// Connect opens the RTSP session and sets up every advertised media.
func (p *Player) Connect(uri string) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != media.PlayerStatePrepared && state != media.PlayerStateDisconnected {
		return errState("connect", state)
	}

	u, err := base.ParseURL(uri)
	if err != nil {
		return media.NewPlayerError(media.PlayerErrInvalidArgument, err)
	}

	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()

	tcp := gortsplib.TransportTCP
	c := &gortsplib.Client{
		Transport:    &tcp,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if err := c.Start(u.Scheme, u.Host); err != nil {
		return media.NewPlayerError(media.PlayerErrConnection, err)
	}

	desc, _, err := c.Describe(u)
	if err != nil {
		c.Close()
		return media.NewPlayerError(media.PlayerErrConnection, err)
	}
	if err := c.SetupAll(desc.BaseURL, desc.Medias); err != nil {
		c.Close()
		return media.NewPlayerError(media.PlayerErrConnection, err)
	}

	c.OnPacketRTPAny(func(medi *description.Media, _ format.Format, pkt *rtp.Packet) {
		p.packets.Add(1)
		if p.OnPacket != nil {
			p.OnPacket(medi, pkt)
		}
	})

	p.mu.Lock()
	p.client = c
	p.desc = desc
	p.negotiated = negotiate(desc, p.resolution)
	p.mu.Unlock()

	go p.watch(c)

	logger.InfoF("[sink] connected to %s", uri)
	p.setState(media.PlayerStateConnected, nil)
	return nil
}

// watch reports an unexpected session end as DISCONNECTED.
func (p *Player) watch(c *gortsplib.Client) {
	err := c.Wait()
	p.mu.Lock()
	current := p.client == c
	if current {
		p.client = nil
	}
	p.mu.Unlock()
	if !current {
		return
	}
	logger.WarnF("[sink] session ended: %v", err)
	p.setState(media.PlayerStateDisconnected, media.NewPlayerError(media.PlayerErrConnection, err))
}

func (p *Player) current(op string, allowed ...media.PlayerState) (*gortsplib.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range allowed {
		if p.state == s && p.client != nil {
			return p.client, nil
		}
	}
	return nil, errState(op, p.state)
}

func (p *Player) Start() error {
	c, err := p.current("start", media.PlayerStateConnected)
	if err != nil {
		return err
	}
	if _, err := c.Play(nil); err != nil {
		return media.NewPlayerError(media.PlayerErrInternal, err)
	}
	p.setState(media.PlayerStatePlaying, nil)
	return nil
}

func (p *Player) Pause() error {
	c, err := p.current("pause", media.PlayerStatePlaying)
	if err != nil {
		return err
	}
	if _, err := c.Pause(); err != nil {
		return media.NewPlayerError(media.PlayerErrInternal, err)
	}
	p.setState(media.PlayerStatePaused, nil)
	return nil
}

func (p *Player) Resume() error {
	c, err := p.current("resume", media.PlayerStatePaused)
	if err != nil {
		return err
	}
	if _, err := c.Play(nil); err != nil {
		return media.NewPlayerError(media.PlayerErrInternal, err)
	}
	p.setState(media.PlayerStatePlaying, nil)
	return nil
}

func (p *Player) Disconnect() error {
	p.mu.Lock()
	c := p.client
	p.client = nil
	state := p.state
	p.mu.Unlock()
	if c == nil {
		return errState("disconnect", state)
	}
	c.Close()
	p.setState(media.PlayerStateDisconnected, nil)
	return nil
}

func (p *Player) Destroy() error {
	p.mu.Lock()
	c := p.client
	p.client = nil
	p.cb = nil
	p.state = media.PlayerStateNone
	p.mu.Unlock()
	if c != nil {
		c.Close()
	}
	return nil
}

func (p *Player) Negotiated() (media.Negotiated, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.desc == nil {
		return media.Negotiated{}, media.NewPlayerError(media.PlayerErrNotInitialized, errors.New("no negotiated session"))
	}
	return p.negotiated, nil
}

func (p *Player) Packets() uint64 {
	return p.packets.Load()
}

var resolutionSizes = []struct {
	bit           uint32
	width, height int
	fps           int
}{
	{media.Resolution1920x1080P30, 1920, 1080, 30},
	{media.Resolution1280x720P30, 1280, 720, 30},
	{media.Resolution960x540P30, 960, 540, 30},
	{media.Resolution864x480P30, 864, 480, 30},
	{media.Resolution720x480P60, 720, 480, 60},
	{media.Resolution640x480P60, 640, 480, 60},
	{media.Resolution640x360P30, 640, 360, 30},
}

// negotiate derives stream parameters from the SDP and the requested resolution.
func negotiate(desc *description.Session, mask uint32) media.Negotiated {
	n := media.Negotiated{VideoWidth: 640, VideoHeight: 480, VideoFrameRate: 60}
	for _, r := range resolutionSizes {
		if mask&r.bit != 0 {
			n.VideoWidth, n.VideoHeight, n.VideoFrameRate = r.width, r.height, r.fps
			break
		}
	}
	for _, medi := range desc.Medias {
		for _, forma := range medi.Formats {
			switch f := forma.(type) {
			case *format.MPEGTS:
				if n.VideoCodec == "" {
					n.VideoCodec = "H264"
				}
			case *format.H264:
				n.VideoCodec = "H264"
			case *format.H265:
				n.VideoCodec = "H265"
			case *format.LPCM:
				n.AudioCodec = "LPCM"
				n.AudioChannels = f.ChannelCount
				n.AudioSampleRate = f.SampleRate
				n.AudioBitWidth = f.BitDepth
			case *format.AC3:
				n.AudioCodec = "AC3"
				n.AudioChannels = f.ChannelCount
				n.AudioSampleRate = f.SampleRate
				n.AudioBitWidth = 16
			default:
				if medi.Type == description.MediaTypeAudio && n.AudioCodec == "" {
					n.AudioCodec = strings.ToUpper(forma.Codec())
					n.AudioSampleRate = forma.ClockRate()
					n.AudioChannels = 2
					n.AudioBitWidth = 16
				}
			}
		}
	}
	if n.AudioCodec == "" {
		n.AudioCodec = "AAC"
		n.AudioChannels = 2
		n.AudioSampleRate = 48000
		n.AudioBitWidth = 16
	}
	return n
}
