package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/o1egl/paseto"
	"github.com/valyala/fasthttp"

	"bloomsketch/internal/api"
	"bloomsketch/internal/config"
	"bloomsketch/internal/core"
	"bloomsketch/internal/logger"
	"bloomsketch/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Config path")
	flag.Parse()

	cfg, err := config.LoadConfigurationFromFile(*configPath)
	if err != nil {
		log.Fatalf("Config Error: %v", err)
	}

	if err := logger.InitializeLogger(cfg.LogDirectoryPath, cfg.LogSeverityLevel); err != nil {
		log.Fatal(err)
	}

	metrics.Global = metrics.SystemMetricsRegistry{}
	metrics.StartSystemMonitor()

	system := core.NewSystemState(cfg)
	defer system.Shutdown()

	if cfg.AuthenticationToken == "" {
		printAdminToken(cfg)
	}

	router := &api.HttpApiRouter{SystemState: system}

	address := fmt.Sprintf(":%d", cfg.ServerPort)
	logger.LogInfoEvent("Listening on %s", address)
	log.Fatal(fasthttp.ListenAndServe(address, router.GetFastHTTPHandler()))
}

func printAdminToken(cfg config.SystemConfiguration) {
	key := []byte(fmt.Sprintf("%-32s", cfg.AuthenticationSecret))[:32]
	token, _ := paseto.NewV2().Encrypt(key, paseto.JSONToken{
		Subject: "admin", Expiration: time.Now().Add(24 * time.Hour),
	}, "")
	fmt.Printf("ADMIN TOKEN: %s\n", token)
}
