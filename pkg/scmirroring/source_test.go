package scmirroring

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/life-stream-dev/go-scmirroring/internal/protocol"
	"golang.org/x/sys/unix"
)

type fakeServer struct {
	ln    net.Listener
	msgs  chan string
	conns chan net.Conn
	reply func(msg string) []string
}

func startFakeServer(t *testing.T, path string, reply func(string) []string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen %s: %v", path, err)
	}
	f := &fakeServer{ln: ln, msgs: make(chan string, 32), conns: make(chan net.Conn, 1), reply: reply}
	t.Cleanup(func() { _ = ln.Close() })
	go f.serve()
	return f
}

func (f *fakeServer) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	f.conns <- conn
	var d protocol.Decoder
	buf := make([]byte, protocol.MaxMsgLen)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		msgs, _ := d.Feed(buf[:n])
		for _, m := range msgs {
			f.msgs <- m
			for _, r := range f.reply(m) {
				_, _ = conn.Write(protocol.Encode(r))
			}
		}
	}
}

func (f *fakeServer) next(t *testing.T) string {
	t.Helper()
	select {
	case m := <-f.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("server received nothing")
		return ""
	}
}

// ackSettings answers SET commands and leaves everything else to the test.
func ackSettings(msg string) []string {
	cmd, err := protocol.ParseCommand(msg)
	if err != nil {
		return nil
	}
	switch cmd.Type {
	case protocol.CmdSetIP, protocol.CmdSetCM, protocol.CmdSetReso, protocol.CmdSetMultisink, protocol.CmdSetStreaming:
		return []string{"OK:SET"}
	}
	return nil
}

type stateEvent struct {
	err   Error
	state State
}

func recordStates(t *testing.T, s *Source) chan stateEvent {
	t.Helper()
	ch := make(chan stateEvent, 16)
	if err := s.SetStateChangedCallback(func(err Error, state State) {
		ch <- stateEvent{err, state}
	}); err != nil {
		t.Fatal(err)
	}
	return ch
}

func expectState(t *testing.T, ch chan stateEvent, expect stateEvent) {
	t.Helper()
	select {
	case got := <-ch:
		if got != expect {
			t.Errorf("callback (%s, %s), expect (%s, %s)", got.err, got.state, expect.err, expect.state)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no callback, expect (%s, %s)", expect.err, expect.state)
	}
}

func expectNoState(t *testing.T, ch chan stateEvent) {
	t.Helper()
	select {
	case got := <-ch:
		t.Errorf("unexpected callback (%s, %s)", got.err, got.state)
	case <-time.After(100 * time.Millisecond):
	}
}

// connectedSource returns a READY source attached to a fake server.
func connectedSource(t *testing.T, reply func(string) []string) (*Source, *fakeServer, chan stateEvent) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipc.sock")
	srv := startFakeServer(t, path, reply)
	s, err := Create(WithSocketPath(path), WithLauncher(LauncherFunc(func(context.Context, string) error {
		return errors.New("server should already run")
	})))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Disconnect() })
	states := recordStates(t, s)
	if err := s.SetIPAndPort("127.0.0.1", "9000"); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectState(t, states, stateEvent{ErrorNone, StateReady})
	for i := 0; i < 3; i++ {
		srv.next(t)
	}
	return s, srv, states
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		msg   string
		err   Error
		state State
		ok    bool
	}{
		{"OK:LISTENING", ErrorNone, StateConnectionWait, true},
		{"FAIL:LISTENING", ErrorInvalidOperation, StateConnectionWait, true},
		{"OK:CONNECTED", ErrorNone, StateConnected, true},
		{"OK:PLAYING", ErrorNone, StatePlaying, true},
		{"OK:SET", ErrorNone, StateReady, true},
		{"OK:PAUSE", ErrorNone, StatePaused, true},
		{"OK:RESUME", ErrorNone, StatePlaying, true},
		{"OK:STOP", ErrorNone, StateTeardown, true},
		{"OK:DESTROY", ErrorNone, StateNull, true},
		{"FAIL:SET", ErrorInvalidOperation, StateReady, true},
		{"OK:HELLO", ErrorNone, StateNone, false},
	}
	for _, tt := range tests {
		err, state, ok := interpret(tt.msg)
		if err != tt.err || state != tt.state || ok != tt.ok {
			t.Errorf("interpret(%q) = (%s, %s, %v), expect (%s, %s, %v)", tt.msg, err, state, ok, tt.err, tt.state, tt.ok)
		}
	}
}

func TestSettersValidate(t *testing.T) {
	s, err := Create(WithSocketPath(filepath.Join(t.TempDir(), "ipc.sock")))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()

	tests := []struct {
		name string
		call func() error
	}{
		{"empty ip", func() error { return s.SetIPAndPort("", "9000") }},
		{"bad port", func() error { return s.SetIPAndPort("127.0.0.1", "abc") }},
		{"port out of range", func() error { return s.SetIPAndPort("127.0.0.1", "70000") }},
		{"unknown resolution", func() error { return s.SetResolution(ResolutionUnknown) }},
		{"resolution max", func() error { return s.SetResolution(ResolutionMax) }},
		{"connection mode", func() error { return s.SetConnectionMode(ConnectionModeMax) }},
		{"server name", func() error { return s.SetServerName(" ") }},
		{"streaming uri", func() error { return s.SetDirectStreaming(true, "") }},
		{"nil callback", func() error { return s.SetStateChangedCallback(nil) }},
		{"connect without address", s.Connect},
	}
	for _, tt := range tests {
		if err := tt.call(); !errors.Is(err, ErrorInvalidParameter) {
			t.Errorf("%s: got %v, expect invalid parameter", tt.name, err)
		}
	}

	if err := s.SetResolution(Resolution1920x1080P30 | Resolution1280x720P30); err != nil {
		t.Errorf("SetResolution: %v", err)
	}
	if err := s.SetMultisinkAbility(true); err != nil {
		t.Errorf("SetMultisinkAbility: %v", err)
	}
}

func TestConnectLaunchRetryBound(t *testing.T) {
	var launches, dials atomic.Int32
	s, err := Create(
		WithSocketPath(filepath.Join(t.TempDir(), "missing.sock")),
		WithLauncher(LauncherFunc(func(_ context.Context, name string) error {
			launches.Add(1)
			if name != "scmirroring" {
				t.Errorf("launch target %q", name)
			}
			return nil
		})),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()
	s.dial = func(fd int, sa unix.Sockaddr) error {
		dials.Add(1)
		return unix.Connect(fd, sa)
	}

	_ = s.SetIPAndPort("127.0.0.1", "9000")
	err = s.Connect()
	if ErrorCode(err) != ErrorInvalidOperation {
		t.Fatalf("Connect = %v, expect invalid operation", err)
	}
	if launches.Load() != 1 {
		t.Errorf("launched %d times, expect 1", launches.Load())
	}
	if dials.Load() != DefaultConnectTries {
		t.Errorf("connected %d times, expect %d", dials.Load(), DefaultConnectTries)
	}
	if s.fd != -1 {
		t.Errorf("socket should be closed after giving up, fd=%d", s.fd)
	}
}

func TestConnectLaunchFailureAborts(t *testing.T) {
	var dials atomic.Int32
	s, err := Create(
		WithSocketPath(filepath.Join(t.TempDir(), "missing.sock")),
		WithLauncher(LauncherFunc(func(context.Context, string) error {
			return errors.New("no bus")
		})),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()
	s.dial = func(fd int, sa unix.Sockaddr) error {
		dials.Add(1)
		return unix.Connect(fd, sa)
	}
	_ = s.SetIPAndPort("127.0.0.1", "9000")
	if err := s.Connect(); !errors.Is(err, ErrorInvalidOperation) {
		t.Fatalf("Connect = %v", err)
	}
	if dials.Load() != 1 {
		t.Errorf("connected %d times after a failed launch, expect 1", dials.Load())
	}
}

func TestConnectLaunchesServerAndPushesSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc.sock")
	var launches atomic.Int32
	srvCh := make(chan *fakeServer, 1)

	s, err := Create(WithSocketPath(path), WithLauncher(LauncherFunc(func(context.Context, string) error {
		launches.Add(1)
		srvCh <- startFakeServer(t, path, ackSettings)
		return nil
	})))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Disconnect()
	states := recordStates(t, s)

	if err := s.SetIPAndPort("127.0.0.1", "9000"); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if launches.Load() != 1 {
		t.Errorf("launched %d times, expect 1", launches.Load())
	}
	srv := <-srvCh

	expectState(t, states, stateEvent{ErrorNone, StateReady})
	for _, expect := range []string{"SET IP 127.0.0.1:9000", "SET CM 0", "SET RESO 0"} {
		if got := srv.next(t); got != expect {
			t.Errorf("server received %q, expect %q", got, expect)
		}
	}
	// the three OK:SET acknowledgements repeat READY
	expectNoState(t, states)
	if s.State() != StateReady {
		t.Errorf("state %s, expect READY", s.State())
	}
}

func TestStartWithSplitResponse(t *testing.T) {
	s, srv, states := connectedSource(t, ackSettings)
	conn := <-srv.conns

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := srv.next(t); got != "START" {
		t.Fatalf("server received %q", got)
	}
	if _, err := conn.Write([]byte("OK:LIS")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := conn.Write([]byte("TENING\x00")); err != nil {
		t.Fatal(err)
	}

	expectState(t, states, stateEvent{ErrorNone, StateConnectionWait})
	expectNoState(t, states)
	if s.State() != StateConnectionWait {
		t.Errorf("state %s", s.State())
	}
}

func TestFailureIsReportedWithoutStateChange(t *testing.T) {
	s, srv, states := connectedSource(t, func(msg string) []string {
		if msg == "START" {
			return []string{"FAIL:LISTENING"}
		}
		return ackSettings(msg)
	})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	srv.next(t)
	expectState(t, states, stateEvent{ErrorInvalidOperation, StateConnectionWait})
	if s.State() != StateReady {
		t.Errorf("failed START moved state to %s", s.State())
	}
}

func TestClientPreconditions(t *testing.T) {
	s, srv, _ := connectedSource(t, ackSettings)

	for name, call := range map[string]func() error{"pause": s.Pause, "resume": s.Resume, "stop": s.Stop} {
		if err := call(); !errors.Is(err, ErrorInvalidOperation) {
			t.Errorf("%s in READY = %v, expect invalid operation", name, err)
		}
	}
	if err := s.Prepare(); err != nil {
		t.Errorf("Prepare in READY: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if got := srv.next(t); got != "START" {
		t.Errorf("rejected commands reached the server, first message %q", got)
	}
}

func TestSettingsForwardedWhileConnected(t *testing.T) {
	s, srv, states := connectedSource(t, ackSettings)
	if err := s.SetResolution(Resolution1280x720P30); err != nil {
		t.Fatal(err)
	}
	if got := srv.next(t); got != "SET RESO 2" {
		t.Errorf("server received %q", got)
	}
	expectNoState(t, states)
}

func TestDestroyReleasesAfterAck(t *testing.T) {
	s, srv, states := connectedSource(t, func(msg string) []string {
		if msg == "DESTROY" {
			return []string{"OK:DESTROY"}
		}
		return ackSettings(msg)
	})
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	srv.next(t)
	expectState(t, states, stateEvent{ErrorNone, StateNull})

	deadline := time.Now().Add(2 * time.Second)
	for !errors.Is(s.Start(), ErrorInvalidParameter) {
		if time.Now().After(deadline) {
			t.Fatal("handle was not released after the DESTROY acknowledgement")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDestroyWithoutConnection(t *testing.T) {
	s, err := Create(WithSocketPath(filepath.Join(t.TempDir(), "ipc.sock")))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := s.Destroy(); !errors.Is(err, ErrorInvalidParameter) {
		t.Errorf("second Destroy = %v", err)
	}
	if err := s.SetIPAndPort("127.0.0.1", "9000"); !errors.Is(err, ErrorInvalidParameter) {
		t.Errorf("SetIPAndPort after Destroy = %v", err)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err    error
		expect Error
	}{
		{nil, ErrorNone},
		{ErrorNotSupported, ErrorNotSupported},
		{wrap(ErrorInvalidOperation, "send %s", "START"), ErrorInvalidOperation},
		{errors.New("boom"), ErrorUnknown},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.expect {
			t.Errorf("ErrorCode(%v) = %s, expect %s", tt.err, got, tt.expect)
		}
	}
}
