package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	alertapi "github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/api"
	adb "github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/database"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/aiops"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/chart"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/notice"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/store"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/middleware"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/facet"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/filter"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/query"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// load config first
	log.Info().Msg("Starting alertcore api server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// configure log level from config
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
	for _, diag := range cfg.Validate() {
		log.Warn().Msg(diag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := adb.New(cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("init database failed")
	}
	defer db.Close()

	rdb := store.NewRedisClientFromConfig(&cfg.Redis)
	defer rdb.Close()

	es, err := store.NewElasticClient(&cfg.Elasticsearch)
	if err != nil {
		log.Fatal().Err(err).Msg("init elasticsearch failed")
	}
	alerts := store.NewAlertESStore(es, &cfg.Elasticsearch)
	strategies := store.NewStrategyPgStore(db, cfg.Strategy.TenantID)
	cmdb := store.NewRedisCMDB(rdb)

	loc, err := time.LoadLocation(cfg.Notice.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Notice.Timezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}
	deps := &actioncontext.Deps{
		Actions:     store.NewActionPgStore(db),
		Alerts:      alerts,
		Strategies:  store.NewRedisStrategyCache(rdb),
		CMDB:        cmdb,
		Experiences: store.NewExperiencePgStore(db),
		Notice:      cfg.Notice,
		Location:    loc,
	}
	if cfg.AIOps.URL != "" {
		deps.AIOps = aiops.NewClient(cfg.AIOps.URL, config.ParseDuration(cfg.AIOps.Timeout, 5*time.Second), cfg.AIOps.EnabledBiz)
	}
	if cfg.Notice.ChartRenderEnabled && cfg.Notice.ChartRenderURL != "" {
		src, perr := chart.NewPromSource(cfg.Prometheus.URL, config.ParseDuration(cfg.Prometheus.QueryTimeout, 30*time.Second))
		if perr != nil {
			log.Error().Err(perr).Msg("init prometheus source failed, charts are skipped")
		} else {
			renderer := chart.NewServiceClient(cfg.Notice.ChartRenderURL, config.ParseDuration(cfg.Notice.ActionTimeout, 10*time.Second))
			deps.Charts = chart.NewBuilder(true, src, renderer, cfg.Notice.PointPrecision, cfg.Notice.Language)
		}
	}
	renderer := notice.NewRenderer(deps)

	engine := filter.NewEngine(strategies, alerts, cmdb)
	facets := facet.NewAggregator(strategies, engine, facet.NewFileLabeler(cfg.Strategy.ScenarioLabelFile), cfg.Strategy.FacetWorkers)
	orchestrator := query.NewOrchestrator(engine, facets, strategies, alerts, config.ParseDuration(cfg.Strategy.RequestTimeout, 30*time.Second))

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		worker, werr := notice.NewKafkaWorker(cfg.Kafka, renderer)
		if werr != nil {
			log.Fatal().Err(werr).Msg("init render worker failed")
		}
		defer worker.Close()
		go worker.Start(ctx)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID)
	router.Use(middleware.AccessLog)
	router.Use(middleware.Tenant(cfg.Strategy.TenantID))
	alertapi.NewApi(router, orchestrator, renderer)

	srv := &http.Server{Addr: cfg.Server.BindAddr, Handler: router}
	go func() {
		log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("start alertcore api server failed.")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ParseDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown api server failed")
	}
	log.Info().Msg("alertcore api server exit...")
}

func init() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
