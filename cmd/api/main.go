package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/config"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/directory"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/httpapi"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/scheduling"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/store/memory"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/store/pg"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/store/remote"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CRMCAL_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Метрики и JSON-логгер.
	obs.Init()
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	obs.InitBuildInfo(version, commit)
	if cfg.Auth.Secret != "" {
		auth.SetSecret(cfg.Auth.Secret)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Хранилище: Postgres при заданном DSN, иначе память.
	var (
		db     *sql.DB
		store  calendar.Store
		dirSrc directory.Lister
	)
	if cfg.Postgres.DSN != "" {
		pgStore, err := pg.Open(cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = pgStore.DB()
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		store = pgStore
		dirSrc = directory.NewPostgres(db)
	} else {
		store = memory.New()
		dirSrc = directory.NewStatic(cfg.Directory.Subjects...)
		obs.Log(obs.LevelWarn, "no postgres dsn, using in-memory event store", nil)
	}

	initCtx, cancelInit := context.WithTimeout(rootCtx, 30*time.Second)
	dir, err := directory.NewCached(initCtx, dirSrc)
	cancelInit()
	if err != nil {
		log.Fatalf("load directory: %v", err)
	}
	if err := dir.Start(cfg.Directory.RefreshCron); err != nil {
		log.Fatalf("directory refresh schedule: %v", err)
	}
	defer dir.Stop()

	changes := stream.New()
	coord := scheduling.New(store, dir,
		scheduling.WithPublisher(changes),
		scheduling.WithMetrics(obs.SchedulingMetrics{}),
		scheduling.WithRecurringPolicy(cfg.RecurringPolicy()),
		scheduling.WithMaxInstances(cfg.Recurrence.MaxInstances),
	)

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, coord, changes,
		httpapi.WithTokenTTL(cfg.Auth.TokenTTL),
		httpapi.WithTokenIssuing(cfg.Auth.IssueTokens),
		httpapi.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins),
		httpapi.WithLocation(cfg.Location()),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	var grpcSrv *grpc.Server
	if cfg.GRPC.Listen != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Listen)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(remote.AuthInterceptor))
		health := httpapi.NewGRPCServer(probe, store)
		health.Register(grpcSrv)
		go health.Monitor(rootCtx, 10*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				obs.Log(obs.LevelError, "grpc serve failed", map[string]any{"error": err.Error()})
			}
		}()
	}

	obs.Log(obs.LevelInfo, "starting crmcal-api", map[string]any{
		"version":   version,
		"http":      cfg.HTTP.Listen,
		"grpc":      cfg.GRPC.Listen,
		"timezone":  cfg.Timezone,
		"recurring": cfg.RecurringPolicy().String(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-rootCtx.Done()
	obs.Log(obs.LevelInfo, "shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	// Pending move confirmations finish before the store goes away.
	coord.Wait()
	if db != nil {
		_ = db.Close()
	}
	obs.Log(obs.LevelInfo, "stopped", nil)
}
