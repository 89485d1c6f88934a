// gogala is the session server for a multi-user, browser-based Go
// editor: a shared buffer, chat, remote compile/run and snippet
// sharing, all over one websocket per client.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gophergala/gogala/internal/compile"
	"github.com/gophergala/gogala/internal/config"
	"github.com/gophergala/gogala/internal/discovery"
	"github.com/gophergala/gogala/internal/format"
	"github.com/gophergala/gogala/internal/gist"
	"github.com/gophergala/gogala/internal/hub"
	"github.com/gophergala/gogala/internal/relay"
	"github.com/gophergala/gogala/internal/server"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "gogala",
	Short:        "Collaborative Go editor session server",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to a config file (defaults come from GOGALA_* env vars)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(log)

	var store gist.Store
	var snippets server.SnippetReader
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		pg := gist.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		store, snippets = pg, pg
		log.Info("snippet store: postgres")
	} else {
		store = gist.NewGitHub(cfg.GithubToken)
		log.Info("snippet store: github gists")
	}

	coordinator := compile.NewCoordinator(compile.NewClient(cfg.PlaygroundURL), h, log)

	srv := server.New(h, format.Goimports{}, store, coordinator, log)
	if snippets != nil {
		srv.SetSnippetReader(snippets)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		rl := relay.NewRedis(ctx, rdb, cfg.RedisChannel, log)
		h.SetRelay(rl)
		go func() {
			if err := rl.Run(ctx, h); err != nil && ctx.Err() == nil {
				log.Error("relay stopped", "err", err)
			}
		}()
		log.Info("relay enabled", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	if cfg.MDNS {
		port, err := listenPort(cfg.Addr)
		if err != nil {
			return err
		}
		go func() {
			if err := discovery.Announce(ctx, port, log); err != nil {
				log.Warn("mdns announcement failed", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: srv.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("gogala listening", "addr", cfg.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	coordinator.Wait()
	return nil
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	return port, nil
}
