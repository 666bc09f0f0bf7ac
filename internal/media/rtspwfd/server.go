// Package rtspwfd serves the mirrored screen over RTSP. Encoded MPEG-TS
// arrives as RTP on a local UDP ingest port and is fanned out to the sinks.
package rtspwfd

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/google/uuid"
	"github.com/life-stream-dev/go-scmirroring/internal/config"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/media"
	"github.com/life-stream-dev/go-scmirroring/internal/utils"
	"github.com/pion/rtp"
)

const (
	wfdRequirement = "org.wfa.wfd1.0"

	statusOptionNotSupported base.StatusCode = 551
)

type Server struct {
	cfg config.MediaConfig

	mu       sync.Mutex
	rtsp     *gortsplib.Server
	stream   *gortsplib.ServerStream
	desc     *description.Session
	settings media.Settings
	events   media.Events
	wfd      media.WFDResolution
	sessions map[*gortsplib.ServerSession]string
	playing  *gortsplib.ServerSession
	ingest   net.PacketConn
	dump     *os.File
	started  bool

	paused  atomic.Bool
	packets atomic.Uint64
	wg      sync.WaitGroup
}

func New(cfg config.MediaConfig) *Server {
	return &Server{
		cfg:      cfg,
		sessions: make(map[*gortsplib.ServerSession]string),
	}
}

// Factory adapts New to media.ServerFactory.
func Factory(cfg config.MediaConfig) media.Server {
	return New(cfg)
}

func (s *Server) Start(settings media.Settings, events media.Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("rtsp server already started")
	}

	s.settings = settings
	s.events = events
	s.wfd = media.TranslateResolution(settings.Resolution, s.cfg.VideoResolutionSupport)
	s.desc = &description.Session{
		Title: "scmirroring",
		Medias: []*description.Media{{
			Type:    description.MediaTypeVideo,
			Formats: []format.Format{&format.MPEGTS{}},
		}},
	}

	ingestAddr, err := s.ingestAddress()
	if err != nil {
		return err
	}

	port := settings.Port
	if port == "" {
		port = "7236"
	}
	rtspServer := &gortsplib.Server{
		Handler:     s,
		RTSPAddress: net.JoinHostPort(settings.IP, port),
		ReadTimeout: utils.ParseStringTimeOr(s.cfg.ReadTimeout, 10*time.Second),
	}
	// gortsplib wants an even RTP port with RTCP on the next one
	if s.cfg.StreamPortMin > 0 {
		rtspServer.UDPRTPAddress = net.JoinHostPort(settings.IP, strconv.Itoa(s.cfg.StreamPortMin))
		rtspServer.UDPRTCPAddress = net.JoinHostPort(settings.IP, strconv.Itoa(s.cfg.StreamPortMin+1))
	}
	if err := rtspServer.Start(); err != nil {
		return fmt.Errorf("start rtsp server on %s: %w", rtspServer.RTSPAddress, err)
	}

	pc, err := net.ListenPacket("udp", ingestAddr)
	if err != nil {
		rtspServer.Close()
		return fmt.Errorf("listen ingest %s: %w", ingestAddr, err)
	}

	var dump *os.File
	if s.cfg.DumpTS != 0 {
		dumpPath := filepath.Join(os.TempDir(), "scmirroring_dump.ts")
		if f, err := os.Create(dumpPath); err != nil {
			logger.WarnF("[rtsp] unable to create ts dump %s: %v", dumpPath, err)
		} else {
			dump = f
		}
	}
	s.dump = dump

	s.rtsp = rtspServer
	s.stream = gortsplib.NewServerStream(rtspServer, s.desc)
	s.ingest = pc
	s.started = true
	s.paused.Store(false)

	logger.InfoF("[rtsp] WFD server listening on %s%s, ingest %s, native %s cea=%#x hh=%#x, encoder %s, mtu %d, multisink %v",
		rtspServer.RTSPAddress, s.cfg.MountPoint, pc.LocalAddr(), s.wfd.Native, s.wfd.CEA, s.wfd.HH,
		s.cfg.VideoEncoder, s.cfg.MTUSize, settings.Multisink)

	s.wg.Add(1)
	go s.ingestLoop(pc, s.stream, s.desc.Medias[0], dump)
	return nil
}

// ingestAddress is the configured ingest port unless direct streaming names a udp:// source.
func (s *Server) ingestAddress() (string, error) {
	if !s.settings.DirectStreaming {
		return s.cfg.IngestAddress, nil
	}
	u, err := url.Parse(s.settings.StreamingURI)
	if err != nil {
		return "", fmt.Errorf("parse streaming uri: %w", err)
	}
	if u.Scheme != "udp" || u.Host == "" {
		return "", fmt.Errorf("unsupported streaming uri %q", s.settings.StreamingURI)
	}
	return u.Host, nil
}

// ingestLoop owns dump until it returns; Close waits for it before closing the file.
func (s *Server) ingestLoop(pc net.PacketConn, stream *gortsplib.ServerStream, medi *description.Media, dump *os.File) {
	defer s.wg.Done()
	payloadType := medi.Formats[0].PayloadType()
	buf := make([]byte, 2048)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logger.ErrorF("[rtsp] ingest read error: %v", err)
			}
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			logger.DebugF("[rtsp] dropping malformed ingest packet: %v", err)
			continue
		}
		if s.paused.Load() {
			continue
		}
		pkt.PayloadType = payloadType
		if dump != nil {
			_, _ = dump.Write(pkt.Payload)
		}
		if err := stream.WritePacketRTP(medi, pkt); err != nil {
			logger.DebugF("[rtsp] write packet: %v", err)
			continue
		}
		s.packets.Add(1)
	}
}

func (s *Server) Trigger(t media.Trigger) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return media.ErrNotStarted
	}
	var toClose []*gortsplib.ServerSession
	switch t {
	case media.TriggerPause:
		s.paused.Store(true)
	case media.TriggerPlay:
		s.paused.Store(false)
	case media.TriggerTeardown:
		for ss := range s.sessions {
			toClose = append(toClose, ss)
		}
	default:
		s.mu.Unlock()
		return fmt.Errorf("unknown trigger %d", t)
	}
	s.mu.Unlock()

	logger.InfoF("[rtsp] trigger %s", t)
	for _, ss := range toClose {
		ss.Close()
	}
	return nil
}

func (s *Server) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	rtspServer, stream, pc, dump := s.rtsp, s.stream, s.ingest, s.dump
	s.rtsp, s.stream, s.ingest, s.dump = nil, nil, nil, nil
	s.sessions = make(map[*gortsplib.ServerSession]string)
	s.playing = nil
	s.mu.Unlock()

	_ = pc.Close()
	s.wg.Wait()
	stream.Close()
	rtspServer.Close()
	if dump != nil {
		_ = dump.Close()
	}
	logger.InfoF("[rtsp] server closed after %d packets", s.packets.Load())
	return nil
}

func (s *Server) matchesMount(path string) bool {
	mount := strings.Trim(s.cfg.MountPoint, "/")
	path = strings.Trim(path, "/")
	return path == mount || strings.HasPrefix(path, mount+"/")
}

// unsupportedRequirements lists the Require tokens this server does not implement.
func unsupportedRequirements(req *base.Request) []string {
	var unsupported []string
	for _, value := range req.Header["Require"] {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if token != "" && token != wfdRequirement {
				unsupported = append(unsupported, token)
			}
		}
	}
	return unsupported
}

func rejectRequirements(req *base.Request) *base.Response {
	unsupported := unsupportedRequirements(req)
	if len(unsupported) == 0 {
		return nil
	}
	logger.WarnF("[rtsp] unsupported requirements %v", unsupported)
	return &base.Response{
		StatusCode: statusOptionNotSupported,
		Header: base.Header{
			"Unsupported": base.HeaderValue{strings.Join(unsupported, ", ")},
		},
	}
}

func (s *Server) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	remote := ctx.Conn.NetConn().RemoteAddr().String()
	logger.InfoF("[rtsp] client connected from %s", remote)
	s.mu.Lock()
	cb := s.events.OnClientConnected
	s.mu.Unlock()
	if cb != nil {
		cb(remote)
	}
}

func (s *Server) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	logger.InfoF("[rtsp] client connection closed: %v", ctx.Error)
}

func (s *Server) OnSessionOpen(ctx *gortsplib.ServerHandlerOnSessionOpenCtx) {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[ctx.Session] = id
	s.mu.Unlock()
	logger.DebugF("[rtsp] [%s] session opened", id)
}

func (s *Server) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	s.mu.Lock()
	id, known := s.sessions[ctx.Session]
	delete(s.sessions, ctx.Session)
	wasPlaying := s.playing == ctx.Session
	if wasPlaying {
		s.playing = nil
	}
	cb := s.events.OnTeardown
	s.mu.Unlock()

	if !known {
		return
	}
	logger.InfoF("[rtsp] [%s] session closed: %v", id, ctx.Error)
	if cb != nil {
		cb()
	}
}

func (s *Server) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	if res := rejectRequirements(ctx.Request); res != nil {
		return res, nil, nil
	}
	if !s.matchesMount(ctx.Path) {
		return &base.Response{StatusCode: base.StatusNotFound}, nil, fmt.Errorf("unknown mount point %q", ctx.Path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return &base.Response{StatusCode: base.StatusServiceUnavailable}, nil, media.ErrNotStarted
	}
	return &base.Response{StatusCode: base.StatusOK}, s.stream, nil
}

func (s *Server) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	if res := rejectRequirements(ctx.Request); res != nil {
		return res, nil, nil
	}
	if !s.matchesMount(ctx.Path) {
		return &base.Response{StatusCode: base.StatusNotFound}, nil, fmt.Errorf("unknown mount point %q", ctx.Path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return &base.Response{StatusCode: base.StatusServiceUnavailable}, nil, media.ErrNotStarted
	}
	if !s.settings.Multisink && s.playing != nil && s.playing != ctx.Session {
		return &base.Response{StatusCode: base.StatusServiceUnavailable}, nil, errors.New("stream is not shared")
	}
	return &base.Response{StatusCode: base.StatusOK}, s.stream, nil
}

func (s *Server) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	s.mu.Lock()
	s.playing = ctx.Session
	id := s.sessions[ctx.Session]
	cb := s.events.OnPlaying
	s.mu.Unlock()

	s.paused.Store(false)
	logger.InfoF("[rtsp] [%s] PLAY", id)
	if cb != nil {
		cb()
	}
	return &base.Response{StatusCode: base.StatusOK}, nil
}

func (s *Server) OnPause(ctx *gortsplib.ServerHandlerOnPauseCtx) (*base.Response, error) {
	s.mu.Lock()
	id := s.sessions[ctx.Session]
	cb := s.events.OnPaused
	s.mu.Unlock()

	logger.InfoF("[rtsp] [%s] PAUSE", id)
	if cb != nil {
		cb()
	}
	return &base.Response{StatusCode: base.StatusOK}, nil
}

// Resolution returns the WFD capability masks of the running server.
func (s *Server) Resolution() media.WFDResolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wfd
}
