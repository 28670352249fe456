package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the pieces in the music directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pieces, err := newLibrary().Pieces()
		if err != nil {
			return err
		}
		for _, p := range pieces {
			fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", p.Name, p.Size)
		}
		return nil
	},
}
