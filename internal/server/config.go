package server

import (
	"github.com/rmaia/sitesmith/internal/app"
	"github.com/rmaia/sitesmith/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address. Falls back to the app
	// config's address when empty.
	ListenAddr string

	App app.Config

	// Logger defaults to a stdout JSON logger when nil.
	Logger logging.Logger
}
