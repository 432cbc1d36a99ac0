package main

import (
	"github.com/unitd/unitd/internal/config"
	"github.com/unitd/unitd/internal/control"
	"github.com/unitd/unitd/internal/log"
)

// App holds the dependencies every subcommand needs. daemon builds the
// full supervision stack on top of it; the client subcommands
// (list/start/stop/restart/status/shutdown) only ever need Settings and
// a Client talking to an already-running daemon's control socket,
// mirroring the teacher's App struct carrying more than any single
// command uses.
type App struct {
	Logger         log.Logger
	Config         config.Settings
	ConfigProvider *config.Provider
}

// NewApp resolves Settings from provider and builds the shared App.
func NewApp(logger log.Logger, provider *config.Provider) (*App, error) {
	settings, err := provider.Settings()
	if err != nil {
		return nil, err
	}
	return &App{
		Logger:         logger,
		Config:         settings,
		ConfigProvider: provider,
	}, nil
}

// Control returns a client for this App's control socket.
func (a *App) Control() *control.Client {
	return control.NewClient(a.Config.ControlSocketPath())
}
