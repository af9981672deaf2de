package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bsamson01/gamesnight/go/clients/gamesnight_client"
	"github.com/bsamson01/gamesnight/go/internal/models"
	"github.com/bsamson01/gamesnight/go/internal/realtime"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	cfg, err := loadConfig(getEnv("GAMESNIGHT_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	svc, err := buildServices(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build services")
	}
	defer svc.close()

	ctx := context.Background()

	if err := svc.auth.LoadSession(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to restore session")
	}

	email := os.Getenv("GAMESNIGHT_EMAIL")
	password := os.Getenv("GAMESNIGHT_PASSWORD")

	switch {
	case svc.auth.CheckAuth(ctx):
		log.Info().Msg("resumed persisted session")
		if err := svc.conn.Connect(ctx, svc.auth.Token()); err != nil {
			log.Warn().Err(err).Msg("channel connect failed")
		}
	case email != "" && password != "":
		session, err := svc.auth.Login(ctx, email, password)
		if err != nil {
			log.Fatal().Err(err).Msg("login failed")
		}
		if session.User != nil {
			log.Info().Int64("user_id", session.User.ID).Str("role", string(session.User.Role)).Msg("logged in")
		}
	default:
		log.Fatal().Msg("no session; set GAMESNIGHT_EMAIL and GAMESNIGHT_PASSWORD")
	}

	svc.router.On(realtime.EventDisconnected, func(json.RawMessage) {
		log.Warn().Int("attempts_remaining", svc.conn.AttemptsRemaining()).Msg("channel dropped")
	})
	svc.rooms.Subscribe(func() {
		if r := svc.rooms.Room(); r != nil {
			log.Info().
				Int64("room_id", r.ID).
				Str("status", string(r.Status)).
				Int("participants", len(svc.rooms.Participants())).
				Msg("room updated")
		}
	})
	svc.games.Subscribe(func() {
		log.Info().
			Str("status", string(svc.games.Status())).
			Float64("timer_remaining", svc.games.Timer().Remaining).
			Msg("game updated")
	})

	if slug := os.Getenv("GAMESNIGHT_CREATE_ROOM"); slug != "" {
		created, err := svc.rooms.CreateRoom(ctx, gamesnight_client.CreateRoomRequest{GameSlug: slug})
		if err != nil {
			log.Fatal().Err(err).Str("game", slug).Msg("failed to create room")
		}
		log.Info().Int64("room_id", created.ID).Str("invite_code", created.InviteCode).Msg("room created")

		if os.Getenv("GAMESNIGHT_AUTOSTART") != "" {
			if err := svc.games.StartGame(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed to start game")
			}
			if p := svc.games.CurrentPrompt(); p != nil {
				log.Info().Str("prompt", p.Text).Int("prompt_count", svc.games.PromptCount()).Msg("game started")
			}
		}
	}

	// Keep the derived timer field fresh while we wait.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if svc.games.Status() == models.GameStatusActive {
				svc.games.UpdateTimerRemaining()
			}
		case <-sig:
			log.Info().Msg("shutting down")
			return
		}
	}
}
