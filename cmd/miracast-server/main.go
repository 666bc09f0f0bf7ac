package main

import (
	"context"
	"flag"

	"github.com/life-stream-dev/go-scmirroring/internal/config"
	"github.com/life-stream-dev/go-scmirroring/internal/database"
	"github.com/life-stream-dev/go-scmirroring/internal/dbusiface"
	"github.com/life-stream-dev/go-scmirroring/internal/event"
	"github.com/life-stream-dev/go-scmirroring/internal/logger"
	"github.com/life-stream-dev/go-scmirroring/internal/media/rtspwfd"
	"github.com/life-stream-dev/go-scmirroring/internal/server"
)

func main() {
	configPath := flag.String("config", "config.json", "path of the configuration file")
	flag.Parse()

	config.SetConfigPath(*configPath)
	cfg, err := config.ReadConfig()
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init(cfg)
	logger.Debug("Miracast server initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)
	defer cleaner.Clean()

	var status server.StatusEmitter
	svc, err := dbusiface.Export(cfg.Server.ServerName)
	if err != nil {
		logger.ErrorF("Failed to export %s, status signals disabled: %v", dbusiface.BusName(cfg.Server.ServerName), err)
	} else {
		status = svc.Publisher
		cleaner.Add(event.CallableFunc(func(context.Context) error {
			return svc.Publisher.Emit(dbusiface.StatusOff)
		}))
	}

	journal, err := database.Open(cfg)
	if err != nil {
		logger.FatalF("Error occured while initializing database, details: %v", err)
		return
	}

	srv := server.New(server.Options{
		Config:       cfg,
		Status:       status,
		MediaFactory: rtspwfd.Factory,
		Journal:      journal,
		LoadMediaConfig: func() (config.MediaConfig, error) {
			latest, err := config.ReadConfig()
			return latest.Media, err
		},
	})
	if err := srv.Listen(); err != nil {
		logger.FatalF("Failed to listen on %s: %v", cfg.Server.SocketPath, err)
		return
	}
	cleaner.Add(srv)
	cleaner.Add(journal)
	if svc != nil {
		cleaner.Add(event.CallableFunc(func(context.Context) error { return svc.Close() }))
	}

	if err := srv.Serve(context.Background()); err != nil {
		logger.ErrorF("Miracast server stopped: %v", err)
	}
	logger.Info("Miracast server exits")
}
