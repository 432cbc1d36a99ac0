package main

import (
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "start a unit",
		Args:  cobra.ExactArgs(1),
		RunE:  dispatchCommand("start"),
	}
}
