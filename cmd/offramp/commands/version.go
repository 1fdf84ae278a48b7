package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/offramp/version"
)

// VersionCmd shows build information
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}
