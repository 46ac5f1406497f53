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

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/workerlly/internal/admin"
	"github.com/sudo-init-do/workerlly/internal/alerts"
	"github.com/sudo-init-do/workerlly/internal/api"
	"github.com/sudo-init-do/workerlly/internal/config"
	"github.com/sudo-init-do/workerlly/internal/db"
	"github.com/sudo-init-do/workerlly/internal/fees"
	"github.com/sudo-init-do/workerlly/internal/logger"
	"github.com/sudo-init-do/workerlly/internal/marketplace"
	"github.com/sudo-init-do/workerlly/internal/metrics"
	"github.com/sudo-init-do/workerlly/internal/otp"
	"github.com/sudo-init-do/workerlly/internal/store"
	"github.com/sudo-init-do/workerlly/internal/store/memstore"
	"github.com/sudo-init-do/workerlly/internal/store/pgstore"
	"github.com/sudo-init-do/workerlly/internal/tracking"
	"github.com/sudo-init-do/workerlly/internal/user"
	"github.com/sudo-init-do/workerlly/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		logger.Get().Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Init(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)
	calc := fees.NewCalculator(cfg.PlatformFeePct, cfg.GSTPct)

	var checks []func(context.Context) error
	var st store.Store
	switch cfg.StoreDriver {
	case "memory":
		mem := memstore.New()
		st = mem
		if cfg.SeedPath != "" {
			if err := seedMemory(ctx, mem, wallet.NewLedger(mem, calc, nil), cfg.SeedPath); err != nil {
				return err
			}
		}
		log.Warn("using in-memory store, data is lost on restart")
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		st = pgstore.New(pool)
		checks = append(checks, pool.Ping)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, location fanout stays in-process", "addr", cfg.RedisAddr, "error", err)
			rdb = nil
		} else {
			checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		}
	}

	hub := tracking.NewHub(m)
	var fanout tracking.Fanout
	var fanoutDone <-chan error
	if rdb != nil {
		rf := tracking.NewRedis(rdb, hub, cfg.NodeID)
		done, err := rf.Start(ctx)
		if err != nil {
			log.Warn("redis subscribe failed, location fanout stays in-process", "error", err)
		} else {
			fanout, fanoutDone = rf, done
		}
	}
	svc := tracking.NewService(st, hub, fanout, cfg.PresenceWindow, m)

	var notifier alerts.Notifier = alerts.Nop{}
	if cfg.AlertsEnabled {
		opt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		an := alerts.NewAsynqNotifier(opt)
		defer an.Close()
		notifier = an

		proc := alerts.NewProcessor(opt)
		if err := proc.Start(); err != nil {
			return fmt.Errorf("start alert processor: %w", err)
		}
		defer proc.Shutdown()
	}

	ledger := wallet.NewLedger(st, calc, m)
	if cfg.WalletAuditInterval > 0 {
		go ledger.RunAuditor(ctx, cfg.WalletAuditInterval)
	}

	eng := marketplace.NewEngine(marketplace.Deps{
		Store:        st,
		Fees:         calc,
		Ledger:       ledger,
		OTP:          otp.Random{},
		Notifier:     notifier,
		Tracker:      svc,
		Metrics:      m,
		CancelWindow: cfg.AssignedCancelWindow,
		OverdueAfter: cfg.OverdueCancelAfter,
		StaleAfter:   cfg.StaleJobAge,
	})
	if cfg.JobSweepInterval > 0 {
		go eng.RunSweeper(ctx, cfg.JobSweepInterval)
	}

	e := api.New(api.Deps{
		Engine:    eng,
		Ledger:    ledger,
		Tracking:  svc,
		Admin:     admin.NewHandler(st, ledger, hub),
		Users:     user.NewHandler(st),
		Metrics:   m,
		JWTSecret: cfg.JWTSecret,
		Ready: func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Port, "store", cfg.StoreDriver, "node", cfg.NodeID)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case err := <-fanoutDone:
		if ctx.Err() == nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = e.Shutdown(shutdownCtx)
			return fmt.Errorf("location fanout stopped: %v", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func seedMemory(ctx context.Context, mem *memstore.Store, ledger *wallet.Ledger, path string) error {
	seed, err := memstore.ReadSeedFile(path)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	mem.Apply(seed)
	for _, w := range seed.Wallets {
		if _, err := ledger.OpenAccount(ctx, w.UserID, w.InitialCredit); err != nil {
			return fmt.Errorf("seed wallet %s: %w", w.UserID, err)
		}
		if w.CityID != "" && w.CategoryID != "" {
			if err := ledger.Configure(ctx, w.UserID, w.CityID, w.CategoryID); err != nil {
				return fmt.Errorf("seed wallet %s: %w", w.UserID, err)
			}
		}
	}
	logger.FromContext(ctx).Info("memory store seeded", "path", path, "users", len(seed.Users))
	return nil
}
