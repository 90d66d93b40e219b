package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tokensite/pkg/analytics"
	"tokensite/pkg/config"
	"tokensite/pkg/models"
	"tokensite/pkg/server"
	"tokensite/pkg/tui"
	"tokensite/pkg/wallet"
	"tokensite/pkg/watcher"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Version should be set during build
var Version = "dev"

var (
	envFile string
	logFile string
	verbose bool
	port    int
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tokensite",
	Short: "Token landing site backend with wallet onboarding and live market data",
	Long: `tokensite serves the data behind a token landing page: live price and
market cap from the market API, and the wallet flows that connect a visitor,
move their wallet to the token's network and register the token in it.

Without a subcommand it starts the terminal view together with the API server.`,
	Annotations:  map[string]string{"view": "tui"},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The terminal view owns stderr; only log there when asked to.
		if cmd.Annotations["view"] == "tui" && logFile == "" {
			logger = zap.NewNop()
			return nil
		}

		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if logFile != "" {
			cfg.OutputPaths = []string{logFile}
			cfg.ErrorOutputPaths = []string{logFile}
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true)
	},
}

var tuiCmd = &cobra.Command{
	Use:         "tui",
	Short:       "Start the terminal view and the API server",
	Annotations: map[string]string{"view": "tui"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run headless: poll the market and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), false)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tokensite version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Dotenv file to read configuration from")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().IntVar(&port, "port", 8080, "Port for the API server")

	rootCmd.AddCommand(tuiCmd, serveCmd, checkCmd, versionCmd)
}

// app holds the long-lived components shared by the API server and the
// terminal view.
type app struct {
	cfg        *config.AppConfig
	recorder   analytics.Recorder
	watcher    *watcher.Watcher
	reconciler *wallet.Reconciler
	caps       wallet.Capabilities
	closeRec   func()
}

func newApp(ctx context.Context, logger *zap.Logger) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	recorder, closeRec := analytics.New(cfg.Analytics, cfg.Market.HTTPTimeout, logger)
	caps := wallet.Probe(ctx, cfg.Wallets, logger)

	w := watcher.NewWatcher(cfg, logger, recorder)
	r := wallet.NewReconciler(cfg, caps, logger, recorder)
	r.OnChange(func(s models.WalletSession) {
		w.Publish(watcher.Event{Type: watcher.EventWalletUpdated, Data: s})
	})

	return &app{
		cfg:        cfg,
		recorder:   recorder,
		watcher:    w,
		reconciler: r,
		caps:       caps,
		closeRec:   closeRec,
	}, nil
}

func (a *app) Close() {
	a.watcher.Stop()
	a.caps.Close(context.Background())
	a.closeRec()
}

func run(parent context.Context, withTUI bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("starting",
		zap.String("version", Version),
		zap.String("token", a.cfg.Token.Symbol),
		zap.String("network", a.cfg.Network.ChainName),
		zap.Int("port", port),
		zap.Any("wallets", a.caps.Available()),
	)

	a.watcher.Start(ctx)
	srv := server.NewServer(a.cfg, a.watcher, a.reconciler, a.recorder, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx, port)
	})
	if withTUI {
		g.Go(func() error {
			// Leaving the view ends the process.
			defer stop()
			return tui.Start(gctx, tui.Options{
				Config:     a.cfg,
				Watcher:    a.watcher,
				Reconciler: a.reconciler,
				Recorder:   a.recorder,
				Version:    Version,
			})
		})
	} else {
		fmt.Printf("Running in server mode on port %d...\n", port)
	}

	err = g.Wait()
	logger.Info("stopped")
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
