package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/testination-backend/internal/httpapi"
	"github.com/DoyleJ11/testination-backend/internal/hub"
	"github.com/DoyleJ11/testination-backend/internal/leaderboard"
	"github.com/DoyleJ11/testination-backend/internal/session"
	"github.com/DoyleJ11/testination-backend/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "migrate and seed the database before serving")
}

func serve(ctx context.Context) (err error) {
	st, err := store.Open(ctx, cfg.DatabaseURL, logger.Named("store"))
	if err != nil {
		return err
	}
	closers := []func() error{st.Close}
	defer func() {
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
	}()

	if migrateOnStart {
		if err := migrateAndSeed(ctx, st); err != nil {
			return err
		}
	}

	var cache leaderboard.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, leaderboard uncached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			cache = leaderboard.NewRedisCache(rdb, cfg.LeaderboardCacheTTL)
		}
	}

	h := hub.NewHub(context.WithoutCancel(ctx), session.Options{
		Recorder:    st,
		Log:         logger.Named("session"),
		IdleTimeout: cfg.SessionIdleTimeout,
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Store:       st,
			Hub:         h,
			Leaderboard: leaderboard.NewService(st, cache, logger.Named("leaderboard")),
			Log:         logger,
			CORSOrigin:  cfg.CORSOrigin,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(srv.Shutdown(sctx), h.Shutdown(sctx))
	})
	return g.Wait()
}
