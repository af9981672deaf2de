package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bsamson01/gamesnight/go/clients/gamesnight_client"
	"github.com/bsamson01/gamesnight/go/internal/auth"
	"github.com/bsamson01/gamesnight/go/internal/auth/tokenstore"
	"github.com/bsamson01/gamesnight/go/internal/game"
	"github.com/bsamson01/gamesnight/go/internal/realtime"
	"github.com/bsamson01/gamesnight/go/internal/room"
)

// services wires the client SDK together: one REST client, one channel
// connection, one router, and the three state services.
type services struct {
	store  tokenstore.Store
	api    *gamesnight_client.GamesNightClient
	router *realtime.Router
	conn   *realtime.Conn
	auth   *auth.Service
	rooms  *room.Service
	games  *game.Service
}

func buildServices(cfg *Config) (*services, error) {
	store, err := tokenstore.NewSQLiteStore(cfg.Storage.TokenDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	api := gamesnight_client.NewGamesNightClient(cfg.API.BaseURL)
	router := realtime.NewRouter()

	channelCfg := realtime.DefaultConfig(cfg.Channel.URL)
	channelCfg.ReconnectAttempts = cfg.Channel.ReconnectAttempts
	channelCfg.ReconnectDelay = time.Duration(cfg.Channel.ReconnectDelayMS) * time.Millisecond
	conn := realtime.NewConn(channelCfg, router)

	authService := auth.NewService(api, store, conn)
	api.SetTokenSource(authService)
	api.SetAuthFailureHook(func() {
		authService.Logout(context.Background())
	})

	roomService := room.NewService(api, conn, authService)
	roomService.Register(router)

	gameService := game.NewService(api, conn, roomService, clockwork.NewRealClock())
	gameService.Register(router)

	return &services{
		store:  store,
		api:    api,
		router: router,
		conn:   conn,
		auth:   authService,
		rooms:  roomService,
		games:  gameService,
	}, nil
}

func (s *services) close() {
	s.conn.Disconnect()
	s.store.Close()
}
