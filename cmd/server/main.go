package main

import (
	"paywall-engine/internal/app/server"
	"paywall-engine/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel)
	server.Run(cfg)
}
