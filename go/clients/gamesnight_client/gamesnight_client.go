package gamesnight_client

import (
	"github.com/bsamson01/gamesnight/go/clients"
)

// GamesNightClient talks to the GamesNight REST API. Every request carries
// the bearer token supplied by the installed TokenSource; a 401 is retried
// once after a transparent refresh (see clients.BaseClient).
type GamesNightClient struct {
	*clients.BaseClient
}

func NewGamesNightClient(baseURL string) *GamesNightClient {
	return &GamesNightClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
}
