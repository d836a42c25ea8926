package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/labwire/workcell/internal/adapters/node"
	"github.com/labwire/workcell/internal/adapters/state"
	"github.com/labwire/workcell/internal/api"
	"github.com/labwire/workcell/internal/config"
	"github.com/labwire/workcell/internal/events"
	"github.com/labwire/workcell/internal/logging"
	"github.com/labwire/workcell/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and REST API",
	Long: `Start the workcell daemon: node pollers, the scheduler tick loop and
the REST API for submitting and controlling workflow runs.

Examples:
  # Start with defaults (:8432, layout from workcell.yaml)
  workcell serve

  # Custom bind address and layout file
  workcell serve --addr :9000 --layout lab/layout.yaml`,
	RunE: runServe,
}

var (
	serveAddr   string
	serveLayout string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"address to bind the API server to")
	serveCmd.Flags().StringVar(&serveLayout, "layout", "",
		"workcell layout file")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("layout.path", serveCmd.Flags().Lookup("layout"))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	durations, err := config.ParseDurations(cfg)
	if err != nil {
		return err
	}

	layout, err := config.LoadLayout(cfg.Layout.Path)
	if err != nil {
		return err
	}

	store, err := state.NewRunStore(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := state.CloseRunStore(store); closeErr != nil {
			logger.Warn("closing run store", "error", closeErr)
		}
	}()
	logger.Info("run store initialized", "backend", cfg.State.Backend, "path", cfg.State.Path)

	bus := events.NewBus(256)
	defer bus.Close()

	client := node.NewHTTPClient(durations.RequestTimeout)
	nodes := service.NewNodeStateCache(client, bus, logger, durations.StatusInterval, durations.InfoInterval)
	planner := service.NewTransferPlanner(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	applyLayout := func(l *config.Layout) {
		nodes.SetNodes(l.DomainNodes())
		locations, err := l.DomainLocations()
		if err != nil {
			logger.Error("layout locations rejected", "error", err)
			return
		}
		for _, loc := range locations {
			if _, err := store.GetLocation(ctx, loc.ID); err == nil {
				continue // keep runtime occupancy over layout defaults
			}
			if err := store.PutLocation(ctx, loc); err != nil {
				logger.Error("storing location", "location", loc.ID, "error", err)
			}
		}
		planner.Configure(locations, l.DomainTemplates())
	}
	applyLayout(layout)

	conditions := service.NewConditionEvaluator(store, nodes, logger)
	scheduler := service.NewScheduler(
		service.SchedulerConfig{
			TickInterval: durations.Tick,
			RetryBudget:  cfg.Scheduler.RetryBudget,
			LockTTL:      durations.LockTTL,
		},
		store, nodes, client, conditions, planner, service.NewFIFOPolicy(), bus, logger,
	)
	engine := service.NewWorkflowEngine(store, nodes, client, scheduler, planner, bus, logger)

	server := api.NewServer(engine, bus, logger,
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(ctx)
	})
	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.Server.Addr)
	})
	if cfg.Layout.Watch {
		watcher, err := config.NewLayoutWatcher(cfg.Layout.Path, logger, applyLayout)
		if err != nil {
			logger.Warn("layout watcher unavailable", "error", err)
		} else {
			g.Go(func() error {
				watcher.Run(ctx)
				return nil
			})
		}
	}

	logger.Info("workcell started",
		"version", appVersion,
		"addr", cfg.Server.Addr,
		"nodes", len(layout.Nodes),
		"locations", len(layout.Locations),
	)
	return g.Wait()
}

// loadConfigAndLogger loads configuration and builds the process logger
// from it, honoring persistent CLI flags through the shared viper.
func loadConfigAndLogger() (*config.Config, *logging.Logger, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	return cfg, logger, nil
}
