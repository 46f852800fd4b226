// Command gencached serves a content-addressed generation cache over
// HTTP. It owns one store root exclusively: clients connect with the
// remote provider and delegate all generation bookkeeping here.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/gencache"
	"github.com/unkn0wn-root/gencache/config"
	"github.com/unkn0wn-root/gencache/hotcache"
	"github.com/unkn0wn-root/gencache/internal/rpc"
	zaplog "github.com/unkn0wn-root/gencache/log/zap"
	"github.com/unkn0wn-root/gencache/server"
	"github.com/unkn0wn-root/gencache/store"
)

func main() { os.Exit(run()) }

func run() int {
	app := &cli.Command{
		Name:  "gencached",
		Usage: "content-addressed generation cache server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML or JSON config file",
				Sources: cli.EnvVars("GENCACHED_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			checkCommand(),
			statCommand(),
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gencached: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	path := cmd.String("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the cache server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "listen address, overriding the config file",
				Sources: cli.EnvVars("GENCACHED_LISTEN"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level, overriding the config file",
				Sources: cli.EnvVars("GENCACHED_LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if v := cmd.String("listen"); v != "" {
				cfg.Listen = v
			}
			if v := cmd.String("log-level"); v != "" {
				cfg.Log.Level = v
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	zl, err := buildLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer zl.Sync()
	log := zaplog.New(zl)

	st, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}

	hot, err := buildHot(cfg.Hot)
	if err != nil {
		st.Close()
		return err
	}

	srv, err := server.New(ctx, server.Options{
		Store:         st,
		Hot:           hot,
		Lease:         cfg.Server.Lease,
		SweepInterval: cfg.Server.SweepInterval,
		IdleRetention: cfg.Server.IdleRetention,
		MaxPayload:    cfg.Server.MaxPayload,
		Logger:        log,
	})
	if err != nil {
		st.Close()
		if hot != nil {
			hot.Close()
		}
		return err
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		srv.Close()
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	// clients with filesystem access find us through the manifest
	if cfg.Store.Backend == config.StoreFS {
		m := store.Manifest{
			Addr:      ln.Addr().String(),
			PID:       os.Getpid(),
			StartedAt: time.Now().UTC(),
		}
		if err := store.WriteManifest(cfg.Store.Dir, m); err != nil {
			srv.Close()
			return err
		}
	}

	hs := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- hs.Serve(ln) }()

	log.Info("gencache.serving", gencache.Fields{
		"addr":  ln.Addr().String(),
		"store": cfg.Store.Backend,
		"hot":   cfg.Hot.Backend,
		"pid":   os.Getpid(),
	})

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		srv.Close()
		return fmt.Errorf("http server: %w", err)
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shCtx); err != nil {
		log.Warn("gencache.shutdown_timeout", gencache.Fields{"err": err.Error()})
	}
	if err := srv.Close(); err != nil {
		return err
	}
	log.Info("gencache.stopped", nil)
	return nil
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "validate the configuration and exit",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Printf("config ok: listen=%s store=%s hot=%s lease=%s\n",
				cfg.Listen, cfg.Store.Backend, cfg.Hot.Backend, cfg.Server.Lease)
			return nil
		},
	}
}

func statCommand() *cli.Command {
	return &cli.Command{
		Name:  "stat",
		Usage: "query a running server for entry counts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "root",
				Usage: "store root; the server address is read from its manifest",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "server address, overriding manifest discovery",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			addr := cmd.String("addr")
			if addr == "" {
				root := cmd.String("root")
				if root == "" {
					return fmt.Errorf("either --root or --addr is required")
				}
				m, err := store.ReadManifest(root)
				if err != nil {
					return err
				}
				addr = m.Addr
			}
			if !strings.Contains(addr, "://") {
				addr = "http://" + addr
			}

			var health rpc.HealthResponse
			hc := &http.Client{Timeout: 5 * time.Second}
			if err := rpc.GetJSON(ctx, hc, addr+rpc.PathHealth, &health); err != nil {
				return err
			}
			fmt.Printf("status=%s namespaces=%d entries=%d ready=%d assigned=%d uptime=%s\n",
				health.Status, health.Namespaces, health.Entries, health.Ready,
				health.Assigned, time.Duration(health.UptimeSeconds)*time.Second)
			return nil
		},
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "", "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func buildStore(cfg config.StoreConfig) (store.EntryStore, error) {
	switch cfg.Backend {
	case config.StoreFS:
		return store.NewFS(store.FSOptions{Dir: cfg.Dir})
	case config.StoreRedis:
		ropts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return store.NewRedis(store.RedisOptions{
			Client:      goredis.NewClient(ropts),
			Prefix:      cfg.Redis.Prefix,
			LockExpiry:  cfg.Redis.LockExpiry,
			CloseClient: true,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildHot(cfg config.HotConfig) (hotcache.Cache, error) {
	switch cfg.Backend {
	case config.HotRistretto:
		return hotcache.NewRistretto(hotcache.RistrettoConfig{
			MaxBytes: cfg.MaxBytes,
			TTL:      cfg.TTL,
		})
	case config.HotBigcache:
		return hotcache.NewBigcache(hotcache.BigcacheConfig{
			LifeWindow:         cfg.LifeWindow,
			HardMaxCacheSizeMB: int(cfg.MaxBytes >> 20),
		})
	case config.HotNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown hot backend %q", cfg.Backend)
	}
}
