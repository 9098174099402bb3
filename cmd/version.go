package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tempo version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tempo %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
