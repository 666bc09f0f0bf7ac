package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/life-stream-dev/go-scmirroring/internal/config"
	"github.com/life-stream-dev/go-scmirroring/internal/connection"
	"github.com/life-stream-dev/go-scmirroring/internal/database"
	"github.com/life-stream-dev/go-scmirroring/internal/dbusiface"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/media"
	"github.com/life-stream-dev/go-scmirroring/internal/protocol"
	"github.com/life-stream-dev/go-scmirroring/internal/reactor"
	"github.com/life-stream-dev/go-scmirroring/internal/utils"
)

// StatusEmitter publishes the on/off status of the source.
type StatusEmitter interface {
	Emit(status dbusiface.Status) error
}

type Options struct {
	Config       config.Config
	Loop         *reactor.Loop
	Status       StatusEmitter
	MediaFactory media.ServerFactory
	Journal      database.Journal
	// LoadMediaConfig is consulted on every START; nil keeps Config.Media.
	LoadMediaConfig func() (config.MediaConfig, error)
}

// Server is the miracast server context. Everything below the listener is
// owned by the loop goroutine.
type Server struct {
	cfg       config.Config
	loop      *reactor.Loop
	status    StatusEmitter
	newMedia  media.ServerFactory
	journal   database.Journal
	loadMedia func() (config.MediaConfig, error)

	listener *net.UnixListener
	clients  *connection.ConnectionManager
	sender   connection.MessageSender

	settings media.Settings
	media    media.Server
}

func New(opts Options) *Server {
	loop := opts.Loop
	if loop == nil {
		loop = reactor.New()
	}
	journal := opts.Journal
	if journal == nil {
		journal = database.NewMemoryStore(0)
	}
	loadMedia := opts.LoadMediaConfig
	if loadMedia == nil {
		mediaCfg := opts.Config.Media
		loadMedia = func() (config.MediaConfig, error) { return mediaCfg, nil }
	}
	clients := connection.NewConnectionManager(connection.MaxClientCount)
	return &Server{
		cfg:       opts.Config,
		loop:      loop,
		status:    opts.Status,
		newMedia:  opts.MediaFactory,
		journal:   journal,
		loadMedia: loadMedia,
		clients:   clients,
		sender:    connection.NewMessageSender(clients),
	}
}

func (s *Server) Listen() error {
	ln, err := listenUnix(listenOptions{
		path:          s.cfg.Server.SocketPath,
		mode:          os.FileMode(s.cfg.Server.SocketMode),
		group:         s.cfg.Server.SocketGroup,
		retries:       s.cfg.Server.BindRetries,
		retryInterval: utils.ParseStringTimeOr(s.cfg.Server.BindRetryInterval, 250*time.Millisecond),
	})
	if err != nil {
		return err
	}
	s.listener = ln
	logger.InfoF("[server] Listen on %s", s.cfg.Server.SocketPath)
	return nil
}

// Serve accepts command channel clients and runs the loop until DESTROY or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("server is not listening")
	}
	go s.acceptLoop(s.listener)

	err := s.loop.Run(ctx)
	s.shutdown()
	return err
}

func (s *Server) acceptLoop(ln *net.UnixListener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if connection.IsNetClosedError(err) {
				return
			}
			logger.ErrorF("[server] Accept connection error: %v", err)
			continue
		}
		if !s.loop.Post(func() { s.attach(conn) }) {
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) attach(conn net.Conn) {
	client := connection.NewConnection(conn)

	if cred, err := peerCredentials(conn); err == nil {
		logger.InfoF("[%s] Accepted client pid=%d uid=%d gid=%d", client.ConnID, cred.Pid, cred.Uid, cred.Gid)
	} else {
		logger.DebugF("[%s] Accepted client, credentials unavailable: %v", client.ConnID, err)
	}

	if !s.clients.AddConnection(client) {
		logger.WarnF("[%s] Only %d client is served at a time, closing", client.ConnID, connection.MaxClientCount)
		s.record(client.ConnID, database.EventClientRejected, "")
		_ = conn.Close()
		return
	}
	s.record(client.ConnID, database.EventClientAccepted, conn.RemoteAddr().String())

	s.loop.Watch(conn, protocol.MaxMsgLen,
		func(data []byte) { s.onData(client, data) },
		func(err error) { s.onClose(client, err) },
	)
}

func (s *Server) onData(client *connection.Connection, data []byte) {
	msgs, err := client.Decoder.Feed(data)
	for _, msg := range msgs {
		s.dispatch(client, msg)
	}
	if err != nil {
		logger.WarnF("[%s] Dropping oversized frame: %v", client.ConnID, err)
	}
}

func (s *Server) onClose(client *connection.Connection, err error) {
	connection.HandleReadError(client.ConnID, err)
	s.clients.RemoveConnection(client.ConnID)
	_ = client.Conn.Close()
	s.record(client.ConnID, database.EventClientClosed, "")
}

// shutdown runs after the loop has stopped.
func (s *Server) shutdown() {
	if s.media != nil {
		s.closeMedia()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.clients.CloseAll()
}

// Invoke stops the loop and the listener. It is registered with the cleaner.
func (s *Server) Invoke(_ context.Context) error {
	s.loop.Quit()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) activeID() string {
	if c, ok := s.clients.Active(); ok {
		return c.ConnID
	}
	return "server"
}

func (s *Server) record(sessionID string, kind database.EventKind, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.journal.Record(ctx, database.NewEvent(sessionID, kind, detail)); err != nil {
		logger.WarnF("[server] journal %s: %v", kind, err)
	}
}
