package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/blockstore"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/config"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/generator"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/handler"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/incrementer"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/metrics"
	pkglog "github.com/weiawesome/wes-io-live/sequence-service/pkg/log"
)

const serviceName = "sequence-service"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: serviceName,
	})
	logger := pkglog.L()

	logger.Info().Str("driver", cfg.Store.Driver).Msg("starting " + serviceName)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx := context.Background()

	// Block-allocated generators
	seq, err := openIncrementer(ctx, cfg.SequenceStore(), incrementer.KindSequence, cfg.SequenceOptions(), m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize sequence incrementer")
	}
	incrementers := []*incrementer.Incrementer{seq}

	registry := generator.NewRegistry()
	registry.Register(generator.KindSequence, generator.NewBlockGenerator(seq))

	if cfg.HiLo.Enabled {
		hilo, err := openIncrementer(ctx, cfg.HiLoStore(), incrementer.KindHiLo, cfg.HiLoOptions(), m, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize hilo incrementer")
		}
		incrementers = append(incrementers, hilo)
		registry.Register(generator.KindHiLo, generator.NewBlockGenerator(hilo))
	}

	// Sequence-stamped and process-local generators
	registry.Register(generator.KindULID, generator.NewULIDGenerator(seq))
	registry.Register(generator.KindKSUID, generator.NewKSUIDGenerator(seq))

	identity := generator.NewProcessIdentity(time.Now())
	registry.Register(generator.KindProcess, generator.NewProcessGenerator(identity))

	logger.Info().Strs("kinds", registry.Kinds()).Uint32("process_start", identity.Start).Msg("generators initialized")

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	handler.NewHandler(registry, m).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down " + serviceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}

	// Unused ids of the current blocks are forfeited here.
	for _, inc := range incrementers {
		if err := inc.Close(); err != nil {
			logger.Error().Err(err).Str(pkglog.FieldKind, inc.Name()).Msg("failed to close incrementer")
		}
	}

	logger.Info().Msg(serviceName + " stopped")
}

func openIncrementer(
	ctx context.Context,
	storeCfg blockstore.Config,
	kind string,
	opts incrementer.Options,
	observer incrementer.Observer,
	logger zerolog.Logger,
) (*incrementer.Incrementer, error) {
	src, err := blockstore.Open(ctx, storeCfg, logger)
	if err != nil {
		return nil, err
	}

	options := []incrementer.Option{
		incrementer.WithLogger(logger),
		incrementer.WithObserver(observer),
	}

	var inc *incrementer.Incrementer
	if kind == incrementer.KindHiLo {
		inc = incrementer.NewHiLo(src, opts, options...)
	} else {
		inc = incrementer.NewSequence(src, opts, options...)
	}

	if err := inc.Init(ctx); err != nil {
		src.Close()
		return nil, err
	}
	return inc, nil
}
