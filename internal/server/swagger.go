package server

// Run from the repo root to (re)build the swagger spec served at
// /swagger/doc.json, then blank-import the generated package from
// cmd/sitesmith.
//go:generate swag init -g internal/server/server.go -o docs/swagger

// @title Sitesmith API
// @version 0.1
// @description Interactive documentation for the Sitesmith generation API surface.
// @contact.name Sitesmith Maintainers
// @contact.url https://github.com/rmaia/sitesmith
// @BasePath /
