package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/chase3718/guitarbot/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the player over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, cancel := signalContext()
		defer cancel()

		c := newCache()
		if err := startupClear(c); err != nil {
			return err
		}
		p, err := newPlayer(c, nil)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, p.Close()) }()

		srv := server.New(p, newLibrary(), c,
			server.WithLogger(logger), server.WithAllowedOrigins(cfg.Server.AllowedOrigins))
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}
