package server

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/go-scmirroring/internal/connection"
	"github.com/life-stream-dev/go-scmirroring/internal/database"
	"github.com/life-stream-dev/go-scmirroring/internal/dbusiface"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/media"
	"github.com/life-stream-dev/go-scmirroring/internal/protocol"
)

var errNoMediaFactory = errors.New("no media server factory configured")

func (s *Server) respond(r protocol.Response) {
	if err := s.sender.SendMessage(r.String()); err != nil && !errors.Is(err, connection.ErrNoClient) {
		logger.ErrorF("[server] Fail to send %s: %v", r, err)
	}
}

func (s *Server) dispatch(client *connection.Connection, msg string) {
	logger.DebugF("[%s] Received %q", client.ConnID, msg)

	cmd, err := protocol.ParseCommand(msg)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) && cmd.Type != 0 {
			logger.WarnF("[%s] %v", client.ConnID, err)
			s.respond(protocol.Fail(protocol.TagSet))
			return
		}
		logger.DebugF("[%s] Ignoring %q: %v", client.ConnID, msg, err)
		return
	}
	s.record(client.ConnID, database.EventCommand, cmd.String())

	switch cmd.Type {
	case protocol.CmdStart:
		s.handleStart()
	case protocol.CmdSetIP:
		logger.DebugF("[%s] IP: %s, Port: %s", client.ConnID, cmd.IP, cmd.Port)
		s.settings.IP, s.settings.Port = cmd.IP, cmd.Port
		s.respond(protocol.OK(protocol.TagSet))
	case protocol.CmdSetCM:
		logger.DebugF("[%s] Connection mode %d", client.ConnID, cmd.Mode)
		s.settings.ConnectionMode = cmd.Mode
		s.respond(protocol.OK(protocol.TagSet))
	case protocol.CmdSetReso:
		logger.DebugF("[%s] Resolution %#x", client.ConnID, cmd.Resolution)
		s.settings.Resolution = cmd.Resolution
		s.respond(protocol.OK(protocol.TagSet))
	case protocol.CmdSetMultisink:
		logger.DebugF("[%s] Multisink %v", client.ConnID, cmd.Enabled)
		s.settings.Multisink = cmd.Enabled
		s.respond(protocol.OK(protocol.TagSet))
	case protocol.CmdSetStreaming:
		logger.DebugF("[%s] Direct streaming %v %s", client.ConnID, cmd.Enabled, cmd.URI)
		s.settings.DirectStreaming, s.settings.StreamingURI = cmd.Enabled, cmd.URI
		s.respond(protocol.OK(protocol.TagSet))
	case protocol.CmdPause:
		s.handleTrigger(media.TriggerPause, protocol.TagPause)
	case protocol.CmdResume:
		s.handleTrigger(media.TriggerPlay, protocol.TagResume)
	case protocol.CmdStop:
		s.handleStop()
	case protocol.CmdDestroy:
		s.handleDestroy()
	}
}

func (s *Server) handleStart() {
	if s.media != nil {
		logger.WarnF("[server] START while already listening")
		s.respond(protocol.Fail(protocol.TagListening))
		return
	}
	if err := s.startMedia(); err != nil {
		logger.ErrorF("[server] Failed to start miracast server: %v", err)
		s.record(s.activeID(), database.EventServerFailed, err.Error())
		s.respond(protocol.Fail(protocol.TagListening))
		return
	}
	s.record(s.activeID(), database.EventServerStarted, fmt.Sprintf("%s:%s", s.settings.IP, s.settings.Port))
	s.respond(protocol.OK(protocol.TagListening))
	s.emitStatus(dbusiface.StatusOn)
}

func (s *Server) startMedia() error {
	if s.newMedia == nil {
		return errNoMediaFactory
	}
	mediaCfg, err := s.loadMedia()
	if err != nil {
		return fmt.Errorf("load media configuration: %w", err)
	}

	m := s.newMedia(mediaCfg)
	events := media.Events{
		OnClientConnected: func(remote string) {
			s.loop.Post(func() { s.onSinkConnected(m, remote) })
		},
		OnPlaying: func() {
			s.loop.Post(func() { s.onSinkEvent(m, database.EventSinkPlaying, protocol.TagPlaying) })
		},
		OnPaused: func() {
			s.loop.Post(func() { s.onSinkEvent(m, database.EventSinkPaused, protocol.TagPause) })
		},
		OnTeardown: func() {
			s.loop.Post(func() { s.onSinkTeardown(m) })
		},
	}
	if err := m.Start(s.settings, events); err != nil {
		_ = m.Close()
		return err
	}
	s.media = m
	return nil
}

func (s *Server) onSinkConnected(m media.Server, remote string) {
	if s.media != m {
		return
	}
	logger.InfoF("[server] There is a client, connected from %s", remote)
	s.record(s.activeID(), database.EventSinkConnected, remote)
	s.respond(protocol.OK(protocol.TagConnected))
}

func (s *Server) onSinkEvent(m media.Server, kind database.EventKind, tag protocol.Tag) {
	if s.media != m {
		return
	}
	s.record(s.activeID(), kind, "")
	s.respond(protocol.OK(tag))
}

// onSinkTeardown ends a single-sink session; with multisink the server keeps serving the others.
func (s *Server) onSinkTeardown(m media.Server) {
	if s.media != m {
		return
	}
	s.record(s.activeID(), database.EventSinkTeardown, "")
	if s.settings.Multisink {
		logger.InfoF("[server] A sink left, multisink server keeps listening")
		return
	}
	s.closeMedia()
	s.respond(protocol.OK(protocol.TagStop))
	s.emitStatus(dbusiface.StatusOff)
}

func (s *Server) handleTrigger(t media.Trigger, tag protocol.Tag) {
	if s.media == nil {
		logger.WarnF("[server] %s requested before START", t)
		s.respond(protocol.Fail(tag))
		return
	}
	if err := s.media.Trigger(t); err != nil {
		logger.ErrorF("[server] Trigger %s failed: %v", t, err)
		s.respond(protocol.Fail(tag))
		return
	}
	s.respond(protocol.OK(tag))
}

func (s *Server) handleStop() {
	if s.media == nil {
		logger.WarnF("[server] STOP requested before START")
		s.respond(protocol.Fail(protocol.TagStop))
		return
	}
	if err := s.media.Trigger(media.TriggerTeardown); err != nil {
		logger.WarnF("[server] Trigger TEARDOWN failed: %v", err)
	}
	s.closeMedia()
	s.respond(protocol.OK(protocol.TagStop))
	s.emitStatus(dbusiface.StatusOff)
}

// handleDestroy always acknowledges; without a media server the cleanup is a no-op.
func (s *Server) handleDestroy() {
	if s.media != nil {
		s.closeMedia()
	} else {
		logger.DebugF("[server] DESTROY with no active media server")
	}
	s.emitStatus(dbusiface.StatusOff)
	s.record(s.activeID(), database.EventServerDestroyed, "")
	s.respond(protocol.OK(protocol.TagDestroy))
	s.loop.Quit()
}

func (s *Server) closeMedia() {
	m := s.media
	s.media = nil
	if err := m.Close(); err != nil {
		logger.WarnF("[server] Closing media server: %v", err)
	}
}

func (s *Server) emitStatus(status dbusiface.Status) {
	if s.status == nil {
		return
	}
	if err := s.status.Emit(status); err != nil {
		logger.ErrorF("[server] Failed to emit miracast server %s signal: %v", status, err)
		return
	}
	s.record(s.activeID(), database.EventStatusChanged, status.String())
}
