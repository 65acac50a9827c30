package main

import (
	"github.com/spf13/cobra"

	"github.com/pushchain/push-audit-node/auditNode/constant"
)

var nodeHome string

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pauditd",
		Short:         "Push Audit Node Daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&nodeHome, "home", constant.DefaultNodeHome, "node home directory")

	InitRootCmd(rootCmd) // add subcommands like `start` and `version`

	return rootCmd
}
