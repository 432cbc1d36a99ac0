package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unitd/unitd/internal/control"
)

func newShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "ask the daemon to stop every unit and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lines, err := appFromContext(cmd).Control().Shutdown()
			if err != nil {
				return err
			}
			if len(lines) > 0 && control.IsError(lines[0]) {
				return fmt.Errorf("%s", lines[0])
			}
			fmt.Println("OK")
			return nil
		},
	}
}
