package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for dagbft
var RootCmd = &cobra.Command{
	Use:              "dagbft",
	Short:            "DAG-based BFT leader commit engine",
	TraverseChildren: true,
}
