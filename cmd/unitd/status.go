package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unitd/unitd/internal/control"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "show one unit's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := appFromContext(cmd).Control().Status(args[0])
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return fmt.Errorf("no response for unit %q", args[0])
			}
			if control.IsError(lines[0]) {
				return fmt.Errorf("%s", lines[0])
			}
			printUnitTable(lines)
			return nil
		},
	}
}
