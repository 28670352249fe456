package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/remeh/sizedwaitgroup"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/chase3718/guitarbot/assign"
	"github.com/chase3718/guitarbot/controller"
	"github.com/chase3718/guitarbot/library"
	"github.com/chase3718/guitarbot/player"
)

var parallel int

func init() {
	precomputeCmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "pieces computed at once")
	rootCmd.AddCommand(precomputeCmd)
}

var precomputeCmd = &cobra.Command{
	Use:   "precompute [piece...]",
	Short: "Fill the cache for every piece, or the named ones, without playing",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, cancel := signalContext()
		defer cancel()

		lib := newLibrary()
		names := args
		if len(names) == 0 {
			if names, err = lib.List(); err != nil {
				return err
			}
		}

		kind := controller.NoWait
		p, err := newPlayer(newCache(), &kind)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, p.Close()) }()

		if parallel < 1 {
			parallel = 1
		}
		var (
			mu   sync.Mutex
			errs error
		)
		swg := sizedwaitgroup.New(parallel)
		for _, name := range names {
			if ctx.Err() != nil {
				break
			}
			swg.Add()
			go func(name string) {
				defer swg.Done()
				st, err := precompute(ctx, lib, p, name)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					logger.Error("precompute: failed", "piece", name, "err", err)
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, st)
			}(name)
		}
		swg.Wait()
		return errs
	},
}

func precompute(ctx context.Context, lib *library.Library, p *player.Player, name string) (assign.Stats, error) {
	content, err := lib.Read(name)
	if err != nil {
		return assign.Stats{}, err
	}
	_, st, err := p.ComputePerformance(ctx, content, true)
	return st, err
}
