package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/commercestack/internal/version"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			fmt.Println(version.JSON())
			return nil
		}
		fmt.Println(version.String())
		if version.IsSnapshot() {
			fmt.Println("this is a snapshot build, not a tagged release")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version info as JSON")
	rootCmd.AddCommand(versionCmd)
}
