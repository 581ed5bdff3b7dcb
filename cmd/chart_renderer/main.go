package main

import (
	"os"
	"strings"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/chartrender"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/fox-gonic/fox"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// 配置日志
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("Starting chart renderer")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// 如果有环境变量，使用环境变量的端口
	addr := cfg.Server.ChartRenderAddr
	if port := os.Getenv("CHART_RENDER_PORT"); port != "" {
		addr = ":" + port
	}

	router := fox.New()
	chartrender.NewServer(chartrender.NewPainter(0, 0)).UseApi(router)

	log.Info().Msgf("Starting chart renderer on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
