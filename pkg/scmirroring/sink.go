package scmirroring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/life-stream-dev/go-scmirroring/internal/config"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/media"
	"github.com/life-stream-dev/go-scmirroring/internal/media/rtspsink"
)

var playerStates = map[media.PlayerState]SinkState{
	media.PlayerStateNone:         SinkStateNone,
	media.PlayerStateNull:         SinkStateNull,
	media.PlayerStatePrepared:     SinkStatePrepared,
	media.PlayerStateConnected:    SinkStateConnected,
	media.PlayerStatePlaying:      SinkStatePlaying,
	media.PlayerStatePaused:       SinkStatePaused,
	media.PlayerStateDisconnected: SinkStateDisconnected,
}

func sinkStateOf(s media.PlayerState) SinkState {
	if state, ok := playerStates[s]; ok {
		return state
	}
	return SinkStateNone
}

// playerError reduces a player failure to the taxonomy.
func playerError(err error) Error {
	if err == nil {
		return ErrorNone
	}
	var pe *media.PlayerError
	if !errors.As(err, &pe) {
		return ErrorInvalidOperation
	}
	switch pe.Code {
	case media.PlayerErrNone:
		return ErrorNone
	case media.PlayerErrNotInitialized,
		media.PlayerErrInvalidAttrType,
		media.PlayerErrInvalidPermission,
		media.PlayerErrOutOfArray,
		media.PlayerErrOutOfRange,
		media.PlayerErrAttrNotExist:
		return ErrorInvalidParameter
	default:
		return ErrorInvalidOperation
	}
}

func convert(op string, err error) error {
	if err == nil {
		return nil
	}
	logger.ErrorF("[sink] %s: %v", op, err)
	return fmt.Errorf("%w: %s: %v", playerError(err), op, err)
}

type SinkOption func(*Sink)

// WithPlayer replaces the RTSP player the sink drives.
func WithPlayer(p media.Player) SinkOption {
	return func(s *Sink) { s.player = p }
}

// Sink is a screen mirroring sink handle around a WFD player.
type Sink struct {
	mu       sync.Mutex
	player   media.Player
	ip, port string
	callback SinkStateCallback
	released bool
}

func CreateSink(opts ...SinkOption) (*Sink, error) {
	s := &Sink{}
	for _, opt := range opts {
		opt(s)
	}
	if s.player == nil {
		s.player = rtspsink.New()
	}
	s.player.SetMessageCallback(s.onMessage)
	return s, nil
}

func (s *Sink) onMessage(err error, state media.PlayerState) {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb == nil {
		logger.DebugF("[sink] No callback registered for %s", state)
		return
	}
	cb(playerError(err), sinkStateOf(state))
}

func (s *Sink) handle() (media.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrorInvalidParameter
	}
	return s.player, nil
}

func (s *Sink) SetIPAndPort(ip, port string) error {
	if strings.TrimSpace(ip) == "" {
		return wrap(ErrorInvalidParameter, "empty ip")
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return wrap(ErrorInvalidParameter, "invalid port %q", port)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	s.ip, s.port = ip, port
	return nil
}

func (s *Sink) SetStateChangedCallback(cb SinkStateCallback) error {
	if cb == nil {
		return wrap(ErrorInvalidParameter, "nil callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	s.callback = cb
	return nil
}

func (s *Sink) UnsetStateChangedCallback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	s.callback = nil
	return nil
}

func (s *Sink) SetDisplay(t DisplayType, surface interface{}) error {
	if t < DisplayTypeOverlay || t >= DisplayTypeMax {
		return wrap(ErrorInvalidParameter, "invalid display type %d", int(t))
	}
	if surface == nil {
		return wrap(ErrorInvalidParameter, "nil display surface")
	}
	p, err := s.handle()
	if err != nil {
		return err
	}
	return convert("set display", p.SetDisplay(media.DisplayKind(t), surface))
}

func (s *Sink) SetResolution(r Resolution) error {
	if !r.valid() {
		return wrap(ErrorInvalidParameter, "invalid resolution %#x", uint32(r))
	}
	p, err := s.handle()
	if err != nil {
		return err
	}
	return convert("set resolution", p.SetResolution(uint32(r)))
}

func (s *Sink) Prepare() error {
	p, err := s.handle()
	if err != nil {
		return err
	}
	return convert("prepare", p.Prepare())
}

// URI is the RTSP address of the source the sink connects to.
func (s *Sink) URI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("rtsp://%s:%s%s", s.ip, s.port, config.DefaultMountPoint)
}

func (s *Sink) Connect() error {
	p, err := s.handle()
	if err != nil {
		return err
	}
	s.mu.Lock()
	missing := s.ip == "" || s.port == ""
	s.mu.Unlock()
	if missing {
		return wrap(ErrorInvalidParameter, "ip and port are not set")
	}
	uri := s.URI()
	logger.InfoF("[sink] Connecting to %s", uri)
	return convert("connect", p.Connect(uri))
}

func (s *Sink) Start() error {
	p, err := s.handle()
	if err != nil {
		return err
	}
	return convert("start", p.Start())
}

func (s *Sink) Pause() error {
	p, err := s.handle()
	if err != nil {
		return err
	}
	return convert("pause", p.Pause())
}

func (s *Sink) Resume() error {
	p, err := s.handle()
	if err != nil {
		return err
	}
	return convert("resume", p.Resume())
}

func (s *Sink) Disconnect() error {
	p, err := s.handle()
	if err != nil {
		return err
	}
	return convert("disconnect", p.Disconnect())
}

func (s *Sink) Unprepare() error {
	p, err := s.handle()
	if err != nil {
		return err
	}
	return convert("unprepare", p.Unprepare())
}

// Destroy releases the player; the handle is unusable afterwards.
func (s *Sink) Destroy() error {
	p, err := s.handle()
	if err != nil {
		return err
	}
	if err := p.Destroy(); err != nil {
		return convert("destroy", err)
	}
	s.mu.Lock()
	s.released = true
	s.callback = nil
	s.mu.Unlock()
	return nil
}

func (s *Sink) State() SinkState {
	p, err := s.handle()
	if err != nil {
		return SinkStateNone
	}
	return sinkStateOf(p.State())
}

func (s *Sink) negotiated() (media.Negotiated, error) {
	p, err := s.handle()
	if err != nil {
		return media.Negotiated{}, err
	}
	n, err := p.Negotiated()
	return n, convert("negotiated", err)
}

func (s *Sink) NegotiatedVideoCodec() (string, error) {
	n, err := s.negotiated()
	return n.VideoCodec, err
}

func (s *Sink) NegotiatedVideoResolution() (width, height int, err error) {
	n, err := s.negotiated()
	return n.VideoWidth, n.VideoHeight, err
}

func (s *Sink) NegotiatedVideoFrameRate() (int, error) {
	n, err := s.negotiated()
	return n.VideoFrameRate, err
}

func (s *Sink) NegotiatedAudioCodec() (string, error) {
	n, err := s.negotiated()
	return n.AudioCodec, err
}

func (s *Sink) NegotiatedAudioChannel() (int, error) {
	n, err := s.negotiated()
	return n.AudioChannels, err
}

func (s *Sink) NegotiatedAudioSampleRate() (int, error) {
	n, err := s.negotiated()
	return n.AudioSampleRate, err
}

func (s *Sink) NegotiatedAudioBitwidth() (int, error) {
	n, err := s.negotiated()
	return n.AudioBitWidth, err
}
