package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/local/threadbridge/internal/assistant"
	"github.com/local/threadbridge/internal/config"
	"github.com/local/threadbridge/internal/gateway"
	"github.com/local/threadbridge/internal/platform"
	"github.com/local/threadbridge/internal/platform/mattermost"
	"github.com/local/threadbridge/internal/platform/slack"
	"github.com/local/threadbridge/internal/reaction"
	"github.com/local/threadbridge/internal/runner"
	"github.com/local/threadbridge/internal/session"
	"github.com/local/threadbridge/internal/sticky"
	"github.com/local/threadbridge/internal/threadlog"
	"github.com/local/threadbridge/internal/toolformat"
	"github.com/local/threadbridge/internal/tracker"
)

const version = "0.1.0"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "threadbridge",
		Short: "threadbridge — turns a chat thread into an interactive coding-assistant session",
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.yaml (default ~/.threadbridge/config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "threadbridge v%s\n", version)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bridge, connecting every configured platform",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runBridge(cmd.Context(), cfgPath); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "run failed:", err)
				os.Exit(1)
			}
		},
	}
	rootCmd.AddCommand(runCmd)
	rootCmd.Run = runCmd.Run

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a default config to get started, then exit",
		Run: func(cmd *cobra.Command, args []string) {
			path := cfgPath
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "setup failed:", err)
					return
				}
				path = p
			}
			cfg := config.Default()
			if err := config.Save(&cfg, path); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "setup failed:", err)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s — edit it with your platform credentials\n", path)
		},
	}
	rootCmd.AddCommand(setupCmd)

	var maxAgeDays int
	gcCmd := &cobra.Command{
		Use:   "gc-logs",
		Short: "Remove thread transcript logs older than --max-age-days",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "gc-logs failed:", err)
				os.Exit(1)
			}
			logDir := logDirFor(cfg)
			removed, err := threadlog.Sweep(logDir, time.Duration(maxAgeDays)*24*time.Hour)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "gc-logs failed:", err)
				os.Exit(1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d thread log(s) older than %d day(s)\n", removed, maxAgeDays)
		},
	}
	gcCmd.Flags().IntVar(&maxAgeDays, "max-age-days", 30, "maximum age of a thread log before it is removed")
	rootCmd.AddCommand(gcCmd)

	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.Load(path)
}

func logDirFor(cfg *config.Config) string {
	return cfg.WorkingDir + "/threadlogs"
}

func runBridge(ctx context.Context, cfgPath string) error {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := threadlog.Sweep(logDirFor(cfg), 30*24*time.Hour); err != nil {
		log.Warn().Err(err).Msg("thread log retention sweep failed")
	}

	tr := tracker.New()
	mgr := session.NewManager()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, pcfg := range cfg.Platforms {
		port, err := dialPlatform(ctx, pcfg, log)
		if err != nil {
			return fmt.Errorf("dial platform %s: %w", pcfg.ID, err)
		}

		sm := sticky.NewManager(tr, port.Publisher)
		spawner := assistant.DefaultSpawner(assistantBinary())
		r := runner.New(tr, sm, port.Publisher, port.Formatter, port.Limits, toolformat.NewDefaultRegistry(),
			spawner, cfg.WorkingDir, logDirFor(cfg), log.With().Str("platform_id", pcfg.ID).Logger())
		r.SetManager(mgr)

		router := reaction.New(tr, port.Ingester, r.Executors, r, log)
		go router.Run(ctx, port.Ingester.ReactionEvents())

		gw := gateway.New(pcfg.ID, mgr, r, port.Ingester, port.Publisher, port.Formatter, log)
		go gw.Run(ctx, port.Ingester.MessageEvents())

		log.Info().Str("platform_id", pcfg.ID).Str("type", string(pcfg.Type)).Msg("platform connected")
	}

	mgr.SetIdleReaper(func(sess *session.Session) {
		// Each platform's own Runner already knows how to finalize a
		// session it started, but the sweep has no platform context —
		// Terminate needs a Runner, and the bridge doesn't track which
		// platform a given idle session belongs to once it's already
		// live. Idle termination is therefore the operator's job today
		// via !stop; the sweep only logs.
		log.Info().Str("session_id", sess.SessionID).Msg("session idle, awaiting operator or !stop")
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")
	cancel()
	mgr.Shutdown()
	return nil
}

func dialPlatform(ctx context.Context, cfg config.PlatformConfig, log zerolog.Logger) (platform.Port, error) {
	switch cfg.Type {
	case config.PlatformMattermost:
		p, err := mattermost.Dial(ctx, cfg, log)
		if err != nil {
			return platform.Port{}, err
		}
		return p.Port(), nil
	case config.PlatformSlack:
		p, err := slack.Dial(ctx, cfg, log)
		if err != nil {
			return platform.Port{}, err
		}
		return p.Port(), nil
	default:
		return platform.Port{}, fmt.Errorf("unknown platform type %q", cfg.Type)
	}
}

func assistantBinary() string {
	if bin := os.Getenv("THREADBRIDGE_ASSISTANT_BIN"); bin != "" {
		return bin
	}
	return "claude"
}

func main() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
