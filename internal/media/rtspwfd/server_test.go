package rtspwfd

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/life-stream-dev/go-scmirroring/internal/config"
	"github.com/life-stream-dev/go-scmirroring/internal/media"
	"github.com/life-stream-dev/go-scmirroring/internal/media/rtspsink"
	"github.com/pion/rtp"
)

func TestUnsupportedRequirements(t *testing.T) {
	tests := []struct {
		require []string
		expect  []string
	}{
		{nil, nil},
		{[]string{"org.wfa.wfd1.0"}, nil},
		{[]string{"org.wfa.wfd1.0, com.example.foo"}, []string{"com.example.foo"}},
		{[]string{"a", "b"}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		req := &base.Request{Header: base.Header{}}
		if tt.require != nil {
			req.Header["Require"] = base.HeaderValue(tt.require)
		}
		got := unsupportedRequirements(req)
		if !reflect.DeepEqual(got, tt.expect) {
			t.Errorf("Require %v: got %v, expect %v", tt.require, got, tt.expect)
		}
	}
}

func TestMatchesMount(t *testing.T) {
	s := New(config.Default().Media)
	tests := []struct {
		path   string
		expect bool
	}{
		{"/wfd1.0/streamid=0", true},
		{"wfd1.0/streamid=0", true},
		{"/wfd1.0/streamid=0/trackID=0", true},
		{"/wfd1.0/streamid=1", false},
		{"/other", false},
	}
	for _, tt := range tests {
		if got := s.matchesMount(tt.path); got != tt.expect {
			t.Errorf("matchesMount(%q) = %v", tt.path, got)
		}
	}
}

func TestTriggerBeforeStart(t *testing.T) {
	s := New(config.Default().Media)
	if err := s.Trigger(media.TriggerPause); !errors.Is(err, media.ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on idle server: %v", err)
	}
}

func TestDirectStreamingURI(t *testing.T) {
	s := New(config.Default().Media)
	s.settings = media.Settings{DirectStreaming: true, StreamingURI: "udp://127.0.0.1:5004"}
	addr, err := s.ingestAddress()
	if err != nil || addr != "127.0.0.1:5004" {
		t.Errorf("ingestAddress = %q, %v", addr, err)
	}
	s.settings.StreamingURI = "file:///tmp/a.ts"
	if _, err := s.ingestAddress(); err == nil {
		t.Error("file uri should be rejected")
	}
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return strconv.Itoa(port)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestServeToSinkPlayer(t *testing.T) {
	cfg := config.Default().Media
	cfg.IngestAddress = "127.0.0.1:0"
	cfg.StreamPortMin, cfg.StreamPortMax = 0, 0

	connected := make(chan struct{}, 4)
	playing := make(chan struct{}, 4)
	teardown := make(chan struct{}, 4)
	events := media.Events{
		OnClientConnected: func(string) { connected <- struct{}{} },
		OnPlaying:         func() { playing <- struct{}{} },
		OnTeardown:        func() { teardown <- struct{}{} },
	}

	port := freePort(t)
	srv := New(cfg)
	if err := srv.Start(media.Settings{IP: "127.0.0.1", Port: port}, events); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Close()
	if srv.Start(media.Settings{}, events) == nil {
		t.Error("second Start should fail")
	}

	player := rtspsink.New()
	player.SetTimeout(2 * time.Second)
	received := make(chan struct{}, 1)
	player.OnPacket = func(_ *description.Media, _ *rtp.Packet) {
		select {
		case received <- struct{}{}:
		default:
		}
	}
	states := make(chan media.PlayerState, 16)
	player.SetMessageCallback(func(_ error, state media.PlayerState) { states <- state })

	if err := player.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := player.Connect("rtsp://127.0.0.1:" + port + "/wfd1.0/streamid=0"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, connected, "client connected event")

	if err := player.Start(); err != nil {
		t.Fatalf("Start player: %v", err)
	}
	waitFor(t, playing, "playing event")

	ingest, err := net.Dial("udp", srv.ingest.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer ingest.Close()
	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 33, SequenceNumber: 1, Timestamp: 90000, SSRC: 1},
		Payload: make([]byte, 188),
	}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-received:
			break loop
		case <-ticker.C:
			_, _ = ingest.Write(raw)
		case <-deadline:
			t.Fatal("no packet reached the sink")
		}
	}

	if err := srv.Trigger(media.TriggerTeardown); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFor(t, teardown, "teardown event")

	sawDisconnect := false
	timeout := time.After(8 * time.Second)
	for !sawDisconnect {
		select {
		case s := <-states:
			sawDisconnect = s == media.PlayerStateDisconnected
		case <-timeout:
			t.Fatal("player never reported DISCONNECTED")
		}
	}
	_ = player.Destroy()
}

func TestCloseWhileIngestWritesDump(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	cfg := config.Default().Media
	cfg.IngestAddress = "127.0.0.1:0"
	cfg.StreamPortMin, cfg.StreamPortMax = 0, 0
	cfg.DumpTS = 1

	for round := 0; round < 3; round++ {
		srv := New(cfg)
		if err := srv.Start(media.Settings{IP: "127.0.0.1", Port: freePort(t)}, media.Events{}); err != nil {
			t.Fatalf("round %d Start: %v", round, err)
		}
		ingest, err := net.Dial("udp", srv.ingest.LocalAddr().String())
		if err != nil {
			t.Fatal(err)
		}

		stop := make(chan struct{})
		flooded := make(chan struct{})
		go func() {
			defer close(flooded)
			pkt := &rtp.Packet{
				Header:  rtp.Header{Version: 2, PayloadType: 33, Timestamp: 90000, SSRC: 1},
				Payload: make([]byte, 188),
			}
			for seq := uint16(0); ; seq++ {
				select {
				case <-stop:
					return
				default:
				}
				pkt.SequenceNumber = seq
				raw, err := pkt.Marshal()
				if err != nil {
					return
				}
				_, _ = ingest.Write(raw)
			}
		}()

		dumpPath := filepath.Join(os.TempDir(), "scmirroring_dump.ts")
		deadline := time.Now().Add(5 * time.Second)
		for {
			if fi, err := os.Stat(dumpPath); err == nil && fi.Size() > 0 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("round %d: nothing reached the ts dump", round)
			}
			time.Sleep(5 * time.Millisecond)
		}

		if err := srv.Close(); err != nil {
			t.Errorf("round %d Close: %v", round, err)
		}
		close(stop)
		<-flooded
		_ = ingest.Close()

		if srv.dump != nil {
			t.Errorf("round %d: dump handle kept after Close", round)
		}
	}
}
