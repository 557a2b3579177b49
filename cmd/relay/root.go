// cmd/relay/root.go
//
// Root command wiring. Persistent flags override the file/env
// configuration, and the resolved appContext is shared by every
// subcommand through closures.

package main

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kingrea/The-Relay/internal/cache"
	"github.com/kingrea/The-Relay/internal/config"
	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/logging"
)

// appContext carries the resolved configuration, logger, and namespace
// every subcommand operates on.
type appContext struct {
	cfg    *config.Config
	logger logging.Logger
	ns     *layout.Namespace
}

func (a *appContext) init(rootDir, logLevel, logFormat string) error {
	var opts []config.Option
	if rootDir != "" {
		opts = append(opts, config.WithRoot(rootDir))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.ns = layout.New(cfg.Root, layout.WithLogger(logger))
	return nil
}

// cacheStore builds the configured cache backend.
func (a *appContext) cacheStore() cache.Store {
	if a.cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.Redis.Addr,
			Password: a.cfg.Cache.Redis.Password,
			DB:       a.cfg.Cache.Redis.DB,
		})
		return cache.NewRedisStore(client, cache.WithRedisLogger(a.logger))
	}
	return cache.NewFileStore(a.ns, cache.WithLogger(a.logger))
}

func newRootCommand() *cobra.Command {
	app := &appContext{}
	var rootDir, logLevel, logFormat string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "File-based storage and coordination for agent fleets",
		Long: "relay manages per-agent storage namespaces: inputs, outputs,\n" +
			"versioned state, TTL caches, file handoffs between agents, and\n" +
			"sequential workflows that chain agent actions together.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(rootDir, logLevel, logFormat)
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&rootDir, "root", "", "storage root (default $RELAY_ROOT or ./.relay)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, or error")
	flags.StringVar(&logFormat, "log-format", "", "log format: console or json")

	cmd.AddCommand(
		newProvisionCommand(app),
		newSaveCommand(app),
		newReadInputCommand(app),
		newListCommand(app),
		newSetStateCommand(app),
		newGetStateCommand(app),
		newCacheSetCommand(app),
		newCacheGetCommand(app),
		newSendCommand(app),
		newInboxCommand(app),
		newConsumeCommand(app),
		newWorkflowCommand(app),
		newRunsCommand(app),
		newCleanCommand(app),
		newArchiveCommand(app),
		newCheckUsageCommand(app),
		newStatusCommand(app),
	)
	return cmd
}
