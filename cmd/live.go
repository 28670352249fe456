package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/chase3718/guitarbot/assign"
	"github.com/chase3718/guitarbot/live"
)

func init() {
	rootCmd.AddCommand(liveCmd)
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Play what is performed on a connected MIDI keyboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, cancel := signalContext()
		defer cancel()

		p, err := newPlayer(nil, nil)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, p.Close()) }()

		a := assign.New(p.Tuning(), p.Strategy(), logger)
		s := live.NewSession(p, a, cfg.ChordWindow(), logger)
		return live.Run(ctx, s)
	},
}
