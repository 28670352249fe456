package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chase3718/guitarbot/config"
	"github.com/chase3718/guitarbot/controller"
	"github.com/chase3718/guitarbot/layout"
)

var writeAppConfig bool

func init() {
	genConfigCmd.Flags().BoolVar(&writeAppConfig, "app", false, "also write the effective application config to --config")
	rootCmd.AddCommand(genConfigCmd)
}

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Write default fret and pluck layouts, overwriting existing ones",
	Long:  `gen-config overwrites fret.conf and pluck.conf in the config directory with safe defaults in which no actuator is wired. It refuses to run while the hardware controller is selected.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := cfg.ControllerConfig()
		if err != nil {
			return err
		}
		repo := layout.NewRepository(cfg.ConfigDir,
			layout.WithHardware(cc.Kind == controller.HardwareKind), layout.WithLogger(logger))
		if err := repo.Regenerate(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wrote %s and %s\n",
			filepath.Join(cfg.ConfigDir, layout.FretFile), filepath.Join(cfg.ConfigDir, layout.PluckFile))
		if writeAppConfig {
			if err := config.Save(configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", configPath)
		}
		return nil
	},
}
