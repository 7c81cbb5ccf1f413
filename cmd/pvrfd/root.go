package main

import (
	"github.com/spf13/cobra"

	"github.com/pushchain/push-vrf-node/vrfClient/constant"
)

var homeDir string

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pvrfd",
		Short:         "Push VRF Oracle Daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", constant.DefaultNodeHome, "node home directory")

	InitRootCmd(rootCmd) // add subcommands like `start` and `version`

	return rootCmd
}
