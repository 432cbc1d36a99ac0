package main

import (
	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "stop a unit",
		Args:  cobra.ExactArgs(1),
		RunE:  dispatchCommand("stop"),
	}
}
