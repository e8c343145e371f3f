package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/reqlens/reqlens/internal/config"
	"github.com/reqlens/reqlens/internal/lifecycle"
	"github.com/reqlens/reqlens/internal/logger/zap"
	"github.com/reqlens/reqlens/internal/logparse"
	"github.com/reqlens/reqlens/internal/matcher"
	"github.com/reqlens/reqlens/internal/metrics"
	"github.com/reqlens/reqlens/internal/reconciler"
	"github.com/reqlens/reqlens/internal/server/web"
	"github.com/reqlens/reqlens/internal/stat"
	"github.com/reqlens/reqlens/internal/storage/postgresql"
	redisStorage "github.com/reqlens/reqlens/internal/storage/redis"
	"github.com/reqlens/reqlens/internal/telemetry"
	zaplog "go.uber.org/zap"
)

func main() {
	modePtr := flag.String("m", "dev", "select the mode that reqlens runs in")
	flag.Parse()

	lg := zap.NewLogger(*modePtr)

	gin.SetMode(gin.ReleaseMode)

	_ = godotenv.Load()

	cfg, err := config.ParseEnvVariables()
	if err != nil {
		lg.Sugar().Fatalf("cannot parse environment variables: %v", err)
	}

	if err := telemetry.Init(cfg); err != nil {
		lg.Sugar().Fatalf("cannot initialize telemetry: %v", err)
	}

	otelShutdown, err := telemetry.SetupOTelSDK(context.Background(), cfg)
	if err != nil {
		lg.Sugar().Fatalf("cannot set up otel sdk: %v", err)
	}

	tracker := lifecycle.NewTracker(lg, cfg.SessionIdleTimeout)
	samples := lifecycle.NewSampleAggregator(tracker)

	client := metrics.NewClient(cfg.MetricsUrl, cfg.SnapshotFetchTimeout, cfg.SnapshotFetchRetries)
	cache := metrics.NewCache(client, tracker.PendingCount, lg, cfg.SnapshotPollInterval, cfg.SnapshotFetchTimeout, cfg.SnapshotWorkers)
	cache.Listen()

	m := matcher.NewMatcher(cfg.MatchTolerance)
	rec := reconciler.New(tracker, samples, cache, m, lg, cfg.SnapshotMaxAge, cfg.SnapshotFetchTimeout, cfg.SessionMatchTolerance)

	var store *postgresql.Store
	if cfg.PostgresqlEnabled {
		sslModeSuffix := ""
		if !cfg.PostgresqlSslEnabled {
			sslModeSuffix = "?sslmode=disable"
		}

		store, err = postgresql.NewStore(
			fmt.Sprintf("postgresql://%s:%s@%s:%s/postgres%s", cfg.PostgresqlUsername, cfg.PostgresqlPassword, cfg.PostgresqlHosts, cfg.PostgresqlPort, sslModeSuffix),
			lg,
			cfg.PostgresqlWriteTimeout,
			cfg.PostgresqlReadTimeout,
		)
		if err != nil {
			lg.Sugar().Fatalf("cannot connect to postgresql: %v", err)
		}

		if err := store.CreateMatchedRequestsTable(); err != nil {
			lg.Sugar().Fatalf("error creating matched requests table: %v", err)
		}

		if err := store.CreateRequestIdIndexForMatchedRequestsTable(); err != nil {
			lg.Sugar().Fatalf("error creating request id index: %v", err)
		}

		if err := store.CreateSessionIdIndexForMatchedRequestsTable(); err != nil {
			lg.Sugar().Fatalf("error creating session id index: %v", err)
		}
	}

	var reportCache *redisStorage.Cache
	if cfg.RedisEnabled {
		c := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.RedisHosts, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       0,
		})

		reportCache = redisStorage.NewCache(c, cfg.RedisWriteTimeout, cfg.RedisReadTimeout, time.Hour)
	}

	var rc web.ReportCache
	if reportCache != nil {
		rc = reportCache
	}

	var mrStore web.MatchedRequestStore
	if store != nil {
		mrStore = store
	}

	as, err := web.NewAdminServer(lg, *modePtr, rec, cache, rc, mrStore, cfg.ServerPort, cfg.AdminPass)
	if err != nil {
		lg.Sugar().Fatalf("error creating admin http server: %v", err)
	}

	as.Run()

	if len(cfg.ServerLogPath) != 0 {
		replayServerLog(cfg.ServerLogPath, rec, lg)
	}

	if len(cfg.StatsLogPath) != 0 {
		replayStatsLog(cfg.StatsLogPath, rec, lg)
	}

	if len(cfg.ServerLogPath) != 0 || len(cfg.StatsLogPath) != 0 {
		report := rec.Report()
		lg.Sugar().Infof("reconciled %d requests, %d stats records unmatched, %d intervals unmatched", len(report.Requests), len(report.UnmatchedRecords), report.UnmatchedIntervals)

		if store != nil {
			if err := store.InsertMatchedRequests(report.Requests); err != nil {
				lg.Sugar().Errorf("error persisting matched requests: %v", err)
			}
		}

		if reportCache != nil {
			if err := reportCache.SetLatestReport(report); err != nil {
				lg.Sugar().Errorf("error caching latest report: %v", err)
			}
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cache.Stop()

	lg.Sugar().Infof("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := as.Shutdown(ctx); err != nil {
		lg.Sugar().Debugf("admin server shutdown: %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := otelShutdown(ctx); err != nil {
		lg.Sugar().Debugf("otel shutdown: %v", err)
	}
}

func replayServerLog(path string, rec *reconciler.Reconciler, lg *zaplog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		lg.Sugar().Fatalf("cannot open server log: %v", err)
	}
	defer f.Close()

	consumed, skipped, err := logparse.Scan(f, rec)
	if err != nil {
		lg.Sugar().Errorf("error scanning server log: %v", err)
	}

	lg.Sugar().Infof("replayed server log %s: %d lines consumed, %d skipped", path, consumed, skipped)
}

func replayStatsLog(path string, rec *reconciler.Reconciler, lg *zaplog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		lg.Sugar().Fatalf("cannot open stats log: %v", err)
	}
	defer f.Close()

	parsed := 0
	invalid := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}

		record, err := stat.ParseLine(line)
		if err != nil {
			invalid++
			lg.Sugar().Debugf("skipping stats line: %v", err)
			continue
		}

		rec.OnRecord(record)
		parsed++
	}

	if err := scanner.Err(); err != nil {
		lg.Sugar().Errorf("error reading stats log: %v", err)
	}

	lg.Sugar().Infof("replayed stats log %s: %d records parsed, %d invalid", path, parsed, invalid)
}
