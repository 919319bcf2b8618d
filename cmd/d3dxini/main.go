package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/timzifer/d3dxini/engine"
	"github.com/timzifer/d3dxini/internal/diag"
	"github.com/timzifer/d3dxini/internal/logging"
	"github.com/timzifer/d3dxini/telemetry"
)

const defaultOptionsFile = "d3dxini.yaml"

type cli struct {
	optionsPath string
	configPath  string
	userFile    string
	options     Options
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "d3dxini",
		Short:         "Load, check and watch d3dx.ini command configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.prepare(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.optionsPath, "options", "o", defaultOptionsFile, "Path to the YAML options file")
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to the root ini file (overrides the options file)")
	root.PersistentFlags().StringVar(&c.userFile, "user-file", "", "Name or path of the user override file")

	root.AddCommand(c.checkCommand(), c.dumpCommand(), c.saveCommand(), c.watchCommand())
	return root
}

func (c *cli) prepare(cmd *cobra.Command) error {
	opts, err := loadOptions(c.optionsPath, cmd.Flags().Changed("options"))
	if err != nil {
		return err
	}
	if c.configPath != "" {
		opts.Config = c.configPath
	}
	if c.userFile != "" {
		opts.UserFile = c.userFile
	}
	c.options = opts

	if settings, ok := opts.LoggingSettings(); ok {
		logger, _, err := logging.Setup(settings)
		if err != nil {
			return fmt.Errorf("setup logger: %w", err)
		}
		log.Logger = logger
	}
	return nil
}

func (c *cli) engineOptions(extra ...engine.Option) []engine.Option {
	var opts []engine.Option
	if c.options.UserFile != "" {
		opts = append(opts, engine.WithUserFile(c.options.UserFile))
	}
	if c.options.Logging != nil {
		opts = append(opts, engine.WithLogger(log.Logger))
	}
	return append(opts, extra...)
}

func (c *cli) open(ctx context.Context, extra ...engine.Option) (*engine.Engine, error) {
	eng, err := engine.New(ctx, c.options.Config, c.engineOptions(extra...)...)
	if err != nil {
		return nil, err
	}
	log.Logger = eng.Logger()
	return eng, nil
}

func (c *cli) checkCommand() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the configuration and report every warning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := c.open(cmd.Context(), engine.WithNotifier(diag.NewBellNotifier()))
			if err != nil {
				return err
			}
			defer eng.Close()
			summary, err := eng.Summary()
			if err != nil {
				return err
			}
			printCheck(cmd.OutOrStdout(), summary)
			if strict && len(summary.Warnings) > 0 {
				return fmt.Errorf("configuration has %d warnings", len(summary.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any warning was reported")
	return cmd
}

func printCheck(out io.Writer, s engine.Summary) {
	fmt.Fprintf(out, "Configuration %s\n", s.Root)
	fmt.Fprintf(out, "  Files: %d\n", len(s.Files))
	fmt.Fprintf(out, "  Shader overrides: %d\n", s.Counts.ShaderOverrides)
	fmt.Fprintf(out, "  Texture overrides: %d (%d fuzzy)\n", s.Counts.TextureEntries, s.Counts.FuzzyTextures)
	fmt.Fprintf(out, "  Command lists: %d, custom shaders: %d\n", s.Counts.CommandLists, s.Counts.CustomShaders)
	fmt.Fprintf(out, "  Variables: %d (%d persisted)\n", s.Counts.Variables, s.Counts.Persisted)
	if len(s.Warnings) == 0 {
		fmt.Fprintln(out, "Configuration check completed successfully.")
		return
	}
	fmt.Fprintln(out, "  Warnings:")
	for _, w := range s.Warnings {
		fmt.Fprintf(out, "    - [%s] %s\n", w.Code, w.Message)
	}
	fmt.Fprintf(out, "Configuration check completed with %d warnings.\n", len(s.Warnings))
}

func (c *cli) dumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print a YAML summary of the compiled registries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := c.open(cmd.Context(), engine.WithLogger(zerolog.Nop()))
			if err != nil {
				return err
			}
			defer eng.Close()
			summary, err := eng.Summary()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(summary)
		},
	}
}

func (c *cli) saveCommand() *cobra.Command {
	var wipe bool
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Rewrite the user override file from the current persisted values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			if wipe {
				if err := eng.WipeAndReload(cmd.Context()); err != nil {
					return err
				}
			}
			if _, err := eng.Save(true); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", eng.Current().Config.UserFile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wipe, "wipe", false, "Discard the existing user file before saving")
	return cmd
}

func (c *cli) watchCommand() *cobra.Command {
	var metricsListen string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the configuration loaded and reload it whenever a file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if metricsListen == "" {
				metricsListen = c.options.Metrics.Listen
			}
			return c.watch(cmd.Context(), metricsListen)
		},
	}
	cmd.Flags().StringVar(&metricsListen, "metrics", "", "Serve Prometheus metrics on this address")
	return cmd
}

func (c *cli) watch(parent context.Context, metricsListen string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector, err := newTelemetryCollector(metricsListen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		collector = telemetry.Noop()
	}

	var reload engine.ReloadFunc
	opts := []engine.Option{
		engine.WithTelemetry(collector),
		engine.WithNotifier(diag.NewBellNotifier()),
		engine.WithRegisterReload(func(fn engine.ReloadFunc) { reload = fn }),
	}
	if c.options.HotReloadEnabled() {
		opts = append(opts, engine.WithHotReload(c.options.Interval()))
	}
	eng, err := c.open(ctx, opts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	if metricsListen != "" {
		srv := &http.Server{Addr: metricsListen, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("listen", metricsListen).Msg("metrics endpoint stopped")
			}
		}()
		defer srv.Close()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := reload(ctx); err != nil {
					logger := eng.Logger()
					logger.Error().Err(err).Msg("reload on SIGHUP failed")
				}
			}
		}
	}()

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newTelemetryCollector(listen string) (telemetry.Collector, error) {
	if listen == "" {
		return telemetry.Noop(), nil
	}
	collector, err := telemetry.NewPrometheusCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	return collector, nil
}
