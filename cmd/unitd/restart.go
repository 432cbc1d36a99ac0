package main

import (
	"github.com/spf13/cobra"
)

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "restart a unit",
		Args:  cobra.ExactArgs(1),
		RunE:  dispatchCommand("restart"),
	}
}
