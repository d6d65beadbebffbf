package main

import (
	"context"
	"time"

	"github.com/C4boose/hfconvo/internal/bus"
	"github.com/C4boose/hfconvo/internal/clock"
	"github.com/C4boose/hfconvo/internal/config"
	"github.com/C4boose/hfconvo/internal/db"
	clog "github.com/C4boose/hfconvo/internal/log"
	"github.com/C4boose/hfconvo/internal/moderation"
	"github.com/C4boose/hfconvo/internal/presence"
	"github.com/C4boose/hfconvo/internal/retention"
	"github.com/C4boose/hfconvo/internal/server"
	"github.com/C4boose/hfconvo/internal/service"
	"github.com/C4boose/hfconvo/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	reg := presence.NewRegistry(time.Duration(cfg.OnlineThresholdMS) * time.Millisecond)
	store := moderation.NewStore(moderation.Caps{
		ModeratorMuteMinutes: cfg.ModeratorMuteCapMinutes,
		AdminMuteMinutes:     cfg.AdminMuteCapMinutes,
	}, reg)
	archive := service.NewArchive(gdb)
	svc := bus.NewService(bus.Options{
		MaxMessageLength: cfg.MaxMessageLength,
		Retention: retention.Policy{
			MaxAge:      time.Duration(cfg.MessageRetentionHours) * time.Hour,
			MaxMessages: cfg.MaxMessages,
		},
		TypingTTL:         time.Duration(cfg.TypingTimeoutMS) * time.Millisecond,
		TypingMinInterval: time.Second,
		CleanupInterval:   time.Duration(cfg.CleanupIntervalMinutes) * time.Minute,
		CleanupThrottle:   time.Duration(cfg.CleanupThrottleMinutes) * time.Minute,
	}, clock.System{}, reg, store, service.NewDirectory(gdb), archive)

	// 重启后回放持久化状态，过期记录在回放时被丢弃。
	if recs, err := archive.LoadModeration(); err != nil {
		log.Warn().Err(err).Msg("load moderation records")
	} else {
		svc.LoadModeration(recs)
	}
	if msgs, err := archive.LoadMessages(cfg.MaxMessages); err != nil {
		log.Warn().Err(err).Msg("load archived messages")
	} else {
		svc.LoadMessages(msgs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	hub := ws.NewHub()
	go hub.Run()
	ws.Bind(hub, svc)

	r := server.SetupRouter(cfg, gdb, svc, hub)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
