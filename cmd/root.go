package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chase3718/guitarbot/cache"
	"github.com/chase3718/guitarbot/config"
	"github.com/chase3718/guitarbot/controller"
	"github.com/chase3718/guitarbot/layout"
	"github.com/chase3718/guitarbot/library"
	"github.com/chase3718/guitarbot/player"
	"github.com/chase3718/guitarbot/score"
	"github.com/chase3718/guitarbot/tuning"
)

var (
	configPath string
	debug      bool
	cfg        config.Config
	logger     = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:           "guitarbot",
	Short:         "Robotic guitar player",
	Long:          `guitarbot assigns the notes of MIDI pieces to strings and frets and plays them on servo-driven hardware, in real time on the console, or as fast as possible to fill the cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLogger(debug)
		return loadConfig(cmd)
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", config.DefaultFile, "YAML configuration file")
	f.BoolVar(&debug, "debug", false, "enable debug logging (adds source location)")
	f.String("controller", "", "controller variant: nowait, realtime or hardware")
	f.String("tuning", "", "tuning variant")
	f.String("strategy", "", "string allocation strategy")
	f.String("music-dir", "", "directory holding the pieces")
	f.String("config-dir", "", "directory holding fret.conf and pluck.conf")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func loadConfig(cmd *cobra.Command) error {
	var err error
	if cfg, err = config.Load(configPath); err != nil {
		return err
	}
	overrides := map[string]*string{
		"controller": &cfg.Controller,
		"tuning":     &cfg.Tuning,
		"strategy":   &cfg.Strategy,
		"music-dir":  &cfg.MusicDir,
		"config-dir": &cfg.ConfigDir,
	}
	for name, dst := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	return cfg.Validate()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLibrary() *library.Library {
	return library.New(cfg.MusicDir, score.Extension)
}

func newCache() *cache.Cache {
	return cache.New(cfg.CachePath(), cache.WithLogger(logger))
}

// newPlayer builds the controller selected by the configuration and a player
// around it. kind overrides the configured controller when not nil.
func newPlayer(c *cache.Cache, kind *controller.Kind) (*player.Player, error) {
	cc, err := cfg.ControllerConfig()
	if err != nil {
		return nil, err
	}
	if kind != nil {
		cc.Kind = *kind
	}
	tn, err := tuning.Lookup(cfg.Tuning)
	if err != nil {
		return nil, err
	}
	repo := layout.NewRepository(cfg.ConfigDir,
		layout.WithHardware(cc.Kind == controller.HardwareKind), layout.WithLogger(logger))
	lay, err := repo.Load()
	if err != nil {
		return nil, err
	}
	ctrl, err := controller.New(cc, controller.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	opts := []player.Option{player.WithLogger(logger), player.WithTempo(cfg.TempoBPM)}
	if c != nil {
		opts = append(opts, player.WithCache(c))
	}
	p, err := player.New(ctrl, tn, cfg.Strategy, lay, opts...)
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	logger.Info("guitarbot starting",
		"controller", cc.Kind.String(),
		"tuning", tn.Name(),
		"strategy", cfg.Strategy,
		"music_dir", cfg.MusicDir,
		"cache_dir", cfg.CachePath(),
		"tempo", cfg.TempoBPM,
	)
	return p, nil
}

// startupClear empties the cache when the configuration asks for it, so a
// changed fret layout or parser never replays a stale fingering.
func startupClear(c *cache.Cache) error {
	if !cfg.ClearCacheOnStart {
		return nil
	}
	if _, err := c.Clear(); err != nil {
		return fmt.Errorf("clear cache on start: %w", err)
	}
	return nil
}
