package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlfredDev/ftppool/adminserver"
	"github.com/AlfredDev/ftppool/config"
	"github.com/AlfredDev/ftppool/errs"
	"github.com/AlfredDev/ftppool/ftpclient"
	"github.com/AlfredDev/ftppool/health"
	"github.com/AlfredDev/ftppool/keepalive"
	"github.com/AlfredDev/ftppool/logger"
	"github.com/AlfredDev/ftppool/metrics"
	"github.com/AlfredDev/ftppool/pool"
	"github.com/AlfredDev/ftppool/recovery"
	"github.com/AlfredDev/ftppool/redisclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Str("host", cfg.Hostname).Msg("ftp connection pool starting")

	factory := ftpclient.NewFactory(cfg, log)

	healthMgr := health.NewManager(factory, health.RepairConfig{
		MaxRepairAttempts: cfg.MaxRepairAttempts,
		RepairBackoff:     cfg.RepairBackoff,
		ProbeTimeout:      cfg.ControlTimeout,
	}, log)

	kaDriver := keepalive.New(healthMgr, cfg.KeepAliveInterval, log)

	breakers := recovery.NewBreakers(cfg, log)
	executor := recovery.NewExecutor(breakers, cfg, log)

	p := pool.New(pool.Config{
		MinIdle:  cfg.MinIdle,
		MaxTotal: cfg.MaxTotal,
		MaxWait:  cfg.MaxWait,
	}, factory, healthMgr, kaDriver, executor, cfg.RetryBaseDelay, cfg.MaxRetries, log)

	warmupCtx, cancelWarmup := context.WithTimeout(context.Background(), cfg.ConnectTimeout*time.Duration(cfg.MinIdle+1))
	if err := p.WarmUp(warmupCtx); err != nil {
		if kind, ok := errs.Of(err); ok && kind == errs.KindInvalidCredentials {
			log.Fatal().Err(err).Msg("authentication rejected during warm-up, refusing to start")
		}
		log.Warn().Err(err).Msg("warm-up did not reach minIdle, continuing — replenishment will retry")
	}
	cancelWarmup()

	healthMgr.Start(cfg.HealthCheckInterval())
	kaDriver.Start()

	collector := metrics.NewCollector(p, healthMgr, breakers)

	monitor := metrics.NewMonitor(healthMgr, metrics.DefaultThresholds(), log)
	monitor.AddSink(metrics.LogSink(log))

	var redisClient *redisclient.Client
	if cfg.RedisURL != "" {
		rc, err := redisclient.New(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — alert fan-out disabled")
		} else if err := rc.Ping(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed — alert fan-out disabled")
		} else {
			redisClient = rc
			monitor.AddSink(metrics.RedisSink(rc, cfg.AlertChannel, log))
			log.Info().Str("channel", cfg.AlertChannel).Msg("redis alert fan-out enabled")
		}
	}
	monitor.Start(30 * time.Second)

	var adminSrv *http.Server
	if cfg.AdminEnabled {
		adminSrv = &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      adminserver.New(p, healthMgr, collector, log),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.AdminAddr).Msg("admin http surface listening")
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin http surface failed")
			}
		}()
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done
	log.Info().Msg("shutdown signal received")

	const gracePeriod = 5 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()

	if adminSrv != nil {
		_ = adminSrv.Shutdown(shutdownCtx)
	}
	monitor.Stop()
	kaDriver.Stop()
	healthMgr.Stop()
	if err := p.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("pool shutdown reported an error")
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	log.Info().Msg("ftp connection pool stopped gracefully")
}
