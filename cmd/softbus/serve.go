package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/softbus/internal/config"
	softhttp "github.com/aretw0/softbus/pkg/adapters/http"
	"github.com/aretw0/softbus/pkg/adapters/memory"
	"github.com/aretw0/softbus/pkg/adapters/redis"
	"github.com/aretw0/softbus/pkg/dispatcher"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/observability"
	"github.com/aretw0/softbus/pkg/permission"
	"github.com/aretw0/softbus/pkg/ports"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the privileged broker daemon",
	Long: `Starts the broker: session servers, channels and permission checks are
handled for every application connecting to the daemon socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadGuard builds the permission policy. Without a policy file only callers
// running as the daemon's own user are allowed.
func loadGuard(cfg config.Config, logger *slog.Logger) (ports.PermissionGuard, error) {
	if cfg.Policy != "" {
		return permission.Load(cfg.Policy, permission.WithLogger(logger))
	}
	logger.Warn("no policy configured, allowing the daemon user only", "uid", os.Getuid())
	return permission.Compile(permission.Document{
		Default: "deny",
		Rules:   []permission.RuleSpec{{UIDs: []int32{int32(os.Getuid())}}},
	}, permission.WithLogger(logger))
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	guard, err := loadGuard(cfg, logger)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	var store ports.ChannelStore = memory.NewStore()
	var transOpts []memory.ManagerOption
	var serverOpts []softhttp.Option
	if cfg.Redis.Address != "" {
		rs := redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, redis.WithPrefix(cfg.Redis.Prefix))
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Redis.Address, err)
		}
		store = rs
		transOpts = append(transOpts, memory.WithLocker(redis.NewLocker(rs.Client(), cfg.Redis.Prefix)))
		serverOpts = append(serverOpts, softhttp.WithHealthCheck(rs.Ping))
		logger.Info("using redis channel store", "addr", cfg.Redis.Address, "prefix", cfg.Redis.Prefix)
	}

	var metrics *observability.Metrics
	dispatchOpts := []dispatcher.Option{dispatcher.WithLogger(logger)}
	if cfg.Metrics {
		metrics = observability.New()
		dispatchOpts = append(dispatchOpts, dispatcher.WithObserver(metrics.ObserveDispatch))
		serverOpts = append(serverOpts, softhttp.WithMetrics(metrics.Handler()))
	}

	var server *softhttp.Server
	var trans *memory.TransManager
	transOpts = append(transOpts,
		memory.WithStore(store),
		memory.WithLogger(logger),
		memory.WithEventSink(func(ev domain.ChannelEvent) {
			server.Streams.Publish(ev)
			if metrics != nil {
				metrics.SetSessions(len(trans.Channels()))
			}
		}),
	)
	trans = memory.NewTransManager(transOpts...)

	d := dispatcher.New(trans, guard,
		ports.TypedResolver{Store: store, Type: domain.ChannelTypeProxy},
		ports.TypedResolver{Store: store, Type: domain.ChannelTypeUDP},
		dispatchOpts...,
	)
	server = softhttp.NewServer(d, append(serverOpts, softhttp.WithLogger(logger))...)

	ln, err := softhttp.Listen(cfg.Listen.Network, cfg.Listen.Address)
	if err != nil {
		return err
	}
	if cfg.Listen.Network == "unix" {
		// Access is decided per caller by the policy, not by file mode.
		if err := os.Chmod(cfg.Listen.Address, 0o666); err != nil {
			logger.Warn("chmod socket failed", "addr", cfg.Listen.Address, "err", err)
		}
		defer os.Remove(cfg.Listen.Address)
	}
	return server.Serve(ctx, ln)
}
