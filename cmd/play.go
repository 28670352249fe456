package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chase3718/guitarbot/player"
)

var noCache bool

func init() {
	playCmd.Flags().BoolVar(&noCache, "no-cache", false, "recompute the performance and overwrite the cached one")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play <piece>",
	Short: "Play a piece from the music directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, cancel := signalContext()
		defer cancel()

		content, err := newLibrary().Read(args[0])
		if err != nil {
			return err
		}
		c := newCache()
		if err := startupClear(c); err != nil {
			return err
		}
		p, err := newPlayer(c, nil)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := p.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		perf, st, err := p.ComputePerformance(ctx, content, !noCache)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], st)

		err = p.Play(ctx, perf)
		if errors.Is(err, player.ErrStopped) || ctx.Err() != nil {
			logger.Info("play: interrupted", "piece", args[0])
			return nil
		}
		return err
	},
}
