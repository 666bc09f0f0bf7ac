package scmirroring

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/life-stream-dev/go-scmirroring/internal/config"
	"github.com/life-stream-dev/go-scmirroring/internal/connection"
	"github.com/life-stream-dev/go-scmirroring/internal/dbusiface"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/protocol"
	"github.com/life-stream-dev/go-scmirroring/internal/reactor"
	"golang.org/x/sys/unix"
)

const (
	DefaultConnectTries = 5
	DefaultRetryDelay   = 10 * time.Millisecond
	receiveTimeout      = 2 * time.Second
)

// Option customises a Source at creation.
type Option func(*Source)

// WithReactor delivers reads and callbacks on loop, which the caller runs.
// Without it the Source runs a loop of its own on a separate goroutine.
func WithReactor(loop *reactor.Loop) Option {
	return func(s *Source) { s.loop = loop }
}

func WithLauncher(l Launcher) Option {
	return func(s *Source) { s.launcher = l }
}

func WithSocketPath(path string) Option {
	return func(s *Source) { s.socketPath = path }
}

// WithConnectRetry bounds the connect loop: tries socket connects in total,
// delay apart.
func WithConnectRetry(tries int, delay time.Duration) Option {
	return func(s *Source) {
		if tries > 0 {
			s.connectTries = tries
		}
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}

// Source is a screen mirroring source handle. It drives the miracast server
// over the command channel; outcomes arrive through the state callback.
type Source struct {
	mu sync.Mutex

	loop     *reactor.Loop
	stopLoop context.CancelFunc
	launcher Launcher
	dial     func(fd int, sa unix.Sockaddr) error

	socketPath   string
	connectTries int
	retryDelay   time.Duration

	fd        int
	conn      net.Conn
	connected bool
	connID    string
	decoder   protocol.Decoder

	ip, port        string
	serverName      string
	mode            ConnectionMode
	resolution      Resolution
	multisink       bool
	directStreaming bool
	streamingURI    string

	state      State
	callback   StateCallback
	destroying bool

	// releasing is set once the NULL callback is queued; it releases the handle.
	releasing bool
	released  bool
}

// Create opens the (not yet connected) command socket.
func Create(opts ...Option) (*Source, error) {
	s := &Source{
		launcher:     DBusLauncher{},
		dial:         unix.Connect,
		socketPath:   config.DefaultSocketPath,
		connectTries: DefaultConnectTries,
		retryDelay:   DefaultRetryDelay,
		serverName:   dbusiface.DefaultServerName,
		state:        StateNone,
		fd:           -1,
		connID:       "src",
	}
	for _, opt := range opts {
		opt(s)
	}

	fd, err := openSocket()
	if err != nil {
		return nil, err
	}
	s.fd = fd

	if s.loop == nil {
		s.loop = reactor.New()
		ctx, cancel := context.WithCancel(context.Background())
		s.stopLoop = cancel
		go func() {
			if err := s.loop.Run(ctx); err != nil && ctx.Err() == nil {
				logger.ErrorF("[src] reactor stopped: %v", err)
			}
		}()
	}
	logger.DebugF("[src] Created source handle, socket %s", s.socketPath)
	return s, nil
}

func openSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, wrap(ErrorInvalidOperation, "socket: %v", err)
	}
	tv := unix.NsecToTimeval(receiveTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return -1, wrap(ErrorInvalidOperation, "set receive timeout: %v", err)
	}
	return fd, nil
}

// SetIPAndPort stores the address the media server listens on.
func (s *Source) SetIPAndPort(ip, port string) error {
	if strings.TrimSpace(ip) == "" {
		return wrap(ErrorInvalidParameter, "empty ip")
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return wrap(ErrorInvalidParameter, "invalid port %q", port)
	}
	return s.update(func() { s.ip, s.port = ip, port }, protocol.SetIP(ip, port))
}

func (s *Source) SetResolution(r Resolution) error {
	if !r.valid() {
		return wrap(ErrorInvalidParameter, "invalid resolution %#x", uint32(r))
	}
	return s.update(func() { s.resolution = r }, protocol.SetResolution(uint32(r)))
}

func (s *Source) SetConnectionMode(m ConnectionMode) error {
	if !m.valid() {
		return wrap(ErrorInvalidParameter, "invalid connection mode %d", int(m))
	}
	return s.update(func() { s.mode = m }, protocol.SetConnectionMode(int(m)))
}

func (s *Source) SetMultisinkAbility(enable bool) error {
	return s.update(func() { s.multisink = enable }, protocol.SetMultisink(enable))
}

// SetDirectStreaming makes the server stream uri instead of the captured screen.
func (s *Source) SetDirectStreaming(enable bool, uri string) error {
	if enable && strings.TrimSpace(uri) == "" {
		return wrap(ErrorInvalidParameter, "direct streaming needs a uri")
	}
	return s.update(func() { s.directStreaming, s.streamingURI = enable, uri }, protocol.SetStreaming(enable, uri))
}

// SetServerName changes which miracast server is launched on Connect.
func (s *Source) SetServerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return wrap(ErrorInvalidParameter, "empty server name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	s.serverName = name
	return nil
}

// update stores a setting and, once connected, forwards it to the server.
func (s *Source) update(store func(), cmd protocol.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	store()
	if !s.connected {
		return nil
	}
	return s.sendLocked(cmd)
}

// SetStateChangedCallback replaces the registered callback.
func (s *Source) SetStateChangedCallback(cb StateCallback) error {
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

func (s *Source) UnsetStateChangedCallback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	s.callback = nil
	return nil
}

// State returns the last state reported to the callback.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect reaches the miracast server, launching it over the system bus when
// the first connect fails. It blocks for at most connectTries attempts.
func (s *Source) Connect() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrorInvalidParameter
	}
	if s.connected {
		s.mu.Unlock()
		return wrap(ErrorInvalidOperation, "already connected")
	}
	if s.ip == "" || s.port == "" {
		s.mu.Unlock()
		return wrap(ErrorInvalidParameter, "ip and port are not set")
	}
	if s.fd < 0 {
		fd, err := openSocket()
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.fd = fd
	}
	fd, path, serverName := s.fd, s.socketPath, s.serverName
	s.mu.Unlock()

	sa := &unix.SockaddrUnix{Name: path}
	launched := false
	for attempt := 1; ; attempt++ {
		logger.DebugF("[src] Trying to connect to the miracast server (%d/%d)", attempt, s.connectTries)
		err := s.dial(fd, sa)
		if err == nil {
			break
		}
		if !launched {
			launched = true
			logger.InfoF("[src] Connect failed (%v), launching miracast server %s", err, serverName)
			if lerr := s.launcher.Launch(context.Background(), serverName); lerr != nil {
				logger.ErrorF("[src] Launch miracast server: %v", lerr)
				return wrap(ErrorInvalidOperation, "launch %s: %v", serverName, lerr)
			}
		}
		if attempt >= s.connectTries {
			logger.ErrorF("[src] Connect error: %v", err)
			s.mu.Lock()
			_ = unix.Close(fd)
			s.fd = -1
			s.mu.Unlock()
			return wrap(ErrorInvalidOperation, "connect %s: %v", path, err)
		}
		time.Sleep(s.retryDelay)
	}
	logger.DebugF("[src] Connected successfully")

	f := os.NewFile(uintptr(fd), path)
	conn, err := net.FileConn(f)
	_ = f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fd = -1
	if err != nil {
		return wrap(ErrorInvalidOperation, "wrap socket: %v", err)
	}
	s.conn = conn
	s.connected = true
	s.decoder.Reset()
	s.loop.Watch(conn, protocol.MaxMsgLen, s.onData, func(err error) { s.onClose(conn, err) })

	s.setStateLocked(ErrorNone, StateReady)

	for _, cmd := range s.pendingSettingsLocked() {
		if err := s.sendLocked(cmd); err != nil {
			logger.WarnF("[src] Pushing %q failed: %v", cmd, err)
		}
	}
	return nil
}

func (s *Source) pendingSettingsLocked() []protocol.Command {
	cmds := []protocol.Command{
		protocol.SetIP(s.ip, s.port),
		protocol.SetConnectionMode(int(s.mode)),
		protocol.SetResolution(uint32(s.resolution)),
	}
	if s.multisink {
		cmds = append(cmds, protocol.SetMultisink(true))
	}
	if s.directStreaming {
		cmds = append(cmds, protocol.SetStreaming(true, s.streamingURI))
	}
	return cmds
}

// Disconnect closes the command channel without telling the server.
func (s *Source) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	s.closeLocked()
	return nil
}

func (s *Source) closeLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.fd >= 0 {
		_ = unix.Close(s.fd)
		s.fd = -1
	}
	s.connected = false
}

// Prepare has no server command; it only checks the session is READY.
func (s *Source) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	if s.state != StateReady {
		return wrap(ErrorInvalidOperation, "prepare in state %s", s.state)
	}
	return nil
}

func (s *Source) Unprepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	return nil
}

func (s *Source) Start() error {
	return s.command(protocol.Start(), StateReady, StateTeardown)
}

func (s *Source) Pause() error {
	return s.command(protocol.Pause(), StatePlaying, StateConnected)
}

func (s *Source) Resume() error {
	return s.command(protocol.Resume(), StatePaused)
}

func (s *Source) Stop() error {
	return s.command(protocol.Stop(), StateConnectionWait, StateConnected, StatePlaying, StatePaused)
}

// command sends cmd when the session is in one of the allowed states. The
// result only says whether the command was written.
func (s *Source) command(cmd protocol.Command, allowed ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrorInvalidParameter
	}
	if !s.connected {
		return wrap(ErrorInvalidOperation, "%s: not connected", cmd.Type)
	}
	if !stateIn(s.state, allowed) {
		return wrap(ErrorInvalidOperation, "%s not allowed in state %s", cmd.Type, s.state)
	}
	return s.sendLocked(cmd)
}

func stateIn(state State, allowed []State) bool {
	for _, a := range allowed {
		if state == a {
			return true
		}
	}
	return false
}

// Destroy asks the server to shut down. A connected handle is released once
// the DESTROY acknowledgement has been delivered; otherwise it is released now.
func (s *Source) Destroy() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrorInvalidParameter
	}
	if s.connected {
		defer s.mu.Unlock()
		if err := s.sendLocked(protocol.Destroy()); err != nil {
			return err
		}
		s.destroying = true
		return nil
	}
	s.releaseLocked()
	s.mu.Unlock()
	return nil
}

func (s *Source) releaseLocked() {
	if s.released {
		return
	}
	s.closeLocked()
	s.released = true
	s.callback = nil
	if s.stopLoop != nil {
		s.loop.Quit()
		s.stopLoop()
	}
	logger.DebugF("[src] Source handle released")
}

func (s *Source) sendLocked(cmd protocol.Command) error {
	if s.conn == nil {
		return wrap(ErrorInvalidOperation, "%s: not connected", cmd.Type)
	}
	if err := connection.SendMessage(s.conn, cmd.String(), s.connID); err != nil {
		return wrap(ErrorInvalidOperation, "send %s: %v", cmd.Type, err)
	}
	return nil
}

// onData runs on the loop for every chunk read from the server.
func (s *Source) onData(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, err := s.decoder.Feed(data)
	if err != nil {
		logger.WarnF("[src] %v", err)
	}
	for _, msg := range msgs {
		logger.DebugF("[src] Received %q", msg)
		code, state, ok := interpret(msg)
		if !ok {
			logger.WarnF("[src] Ignoring response %q", msg)
			continue
		}
		if state == StateReady && !stateIn(s.state, []State{StateNone, StateReady, StateTeardown}) {
			// SET acknowledgements do not move an active session
			continue
		}
		s.setStateLocked(code, state)
	}
}

func (s *Source) onClose(conn net.Conn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	if err != nil {
		logger.WarnF("[src] Command channel closed: %v", err)
	} else {
		logger.InfoF("[src] Miracast server closed the command channel")
	}
	s.closeLocked()
	if s.destroying && !s.releasing {
		s.releaseLocked()
	}
}

// setStateLocked records state and schedules the callback on the loop.
// Successful reports of the current state are dropped.
func (s *Source) setStateLocked(code Error, state State) {
	if code == ErrorNone {
		if state == s.state && state != StateNull {
			return
		}
		s.state = state
	}
	cb := s.callback
	release := code == ErrorNone && state == StateNull
	if release {
		s.releasing = true
	}
	posted := s.loop.Post(func() {
		if cb != nil {
			cb(code, state)
		}
		if release {
			s.mu.Lock()
			s.releaseLocked()
			s.mu.Unlock()
		}
	})
	if !posted && release {
		s.releaseLocked()
	}
	if cb == nil {
		logger.DebugF("[src] No callback registered for %s", state)
	}
}
