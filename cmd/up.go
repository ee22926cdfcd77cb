package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"scribble/internal/color"
	"scribble/internal/config"
	"scribble/internal/stack"
	"scribble/pkg/fixture"
	"scribble/pkg/fixturemetrics"
	"scribble/pkg/logging"
)

// upOptions holds the flags of the up command.
type upOptions struct {
	configFile  string
	metricsAddr string
	copyURL     bool
	debug       bool
	check       bool
}

func newUpCmd() *cobra.Command {
	opts := &upOptions{}
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Set up the configured fixtures and keep them running",
		Long: `Sets up every fixture of the configuration in declaration order and
prints how to reach them. The fixtures stay up until the process receives
SIGINT or SIGTERM and are then torn down in reverse order.

Configuration:
  scribble loads .scribble/config.yaml in the current directory layered over
  the user configuration in ~/.config/scribble/config.yaml. Use --config to
  load a single file instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runUp(ctx, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Load this configuration file instead of the layered configuration")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve fixture metrics on this address (overrides metricsAddr)")
	cmd.Flags().BoolVar(&opts.copyURL, "copy-url", false, "Copy the first server URL to the clipboard")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Set up the fixtures, print the endpoints and tear them down again")
	return cmd
}

func runUp(ctx context.Context, out io.Writer, opts *upOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadUpConfig(opts.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := initUpLogging(cfg.GlobalSettings.LogLevel, opts.debug); err != nil {
		return err
	}

	s, err := stack.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to build fixture stack: %w", err)
	}

	metricsAddr := cfg.GlobalSettings.MetricsAddr
	if opts.metricsAddr != "" {
		metricsAddr = opts.metricsAddr
	}
	if metricsAddr != "" {
		shutdown, err := serveMetrics(metricsAddr)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := func(endpoints []stack.Endpoint) error {
		printEndpoints(out, endpoints)
		if opts.copyURL {
			copyFirstURL(endpoints)
		}
		if opts.check {
			cancel()
		} else {
			fmt.Fprintln(out, color.MutedStyle.Render("Press Ctrl+C to tear down."))
		}
		return nil
	}
	return s.Run(ctx, ready)
}

func loadUpConfig(path string) (config.ScribbleConfig, error) {
	if path != "" {
		return config.LoadConfigFile(path)
	}
	return config.LoadConfig()
}

// initUpLogging applies the configured level unless --log-level was given.
func initUpLogging(configured string, debug bool) error {
	if logLevel != "" && !debug {
		return nil
	}
	level := logging.LevelDebug
	if !debug {
		var err error
		if level, err = logging.ParseLevel(configured); err != nil {
			return fmt.Errorf("invalid logLevel: %w", err)
		}
	}
	logging.InitForCLI(level, os.Stderr)
	return nil
}

func serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	reg := prometheus.NewRegistry()
	fixturemetrics.New("scribble", reg).Install()

	srv := &http.Server{
		Handler:           fixturemetrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics", err, "metrics listener on %s stopped", addr)
		}
	}()
	logging.Info("Metrics", "serving fixture metrics on http://%s/metrics", ln.Addr())

	return func() {
		fixture.SetObserver(nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics", "metrics listener shutdown: %v", err)
		}
	}, nil
}

func printEndpoints(out io.Writer, endpoints []stack.Endpoint) {
	fmt.Fprintln(out, color.TitleStyle.Render(color.SafeIcon("✅")+" Fixtures ready"))
	rows := make([][]string, 0, len(endpoints))
	for _, e := range endpoints {
		rows = append(rows, []string{e.Name, string(e.Type), e.Address})
	}
	fmt.Fprint(out, color.Columns(rows, color.SuccessStyle, color.MutedStyle))
}

// copyFirstURL copies the address of the first server to the clipboard.
// Clipboard failures are logged only, headless machines have none.
func copyFirstURL(endpoints []stack.Endpoint) {
	for _, e := range endpoints {
		if e.Type != config.FixtureTypeHTTPServer && e.Type != config.FixtureTypeMCPServer {
			continue
		}
		if err := clipboard.WriteAll(e.Address); err != nil {
			logging.Warn("CLI", "could not copy %s to the clipboard: %v", e.Address, err)
			return
		}
		logging.Info("CLI", "copied %s to the clipboard", e.Address)
		return
	}
}
