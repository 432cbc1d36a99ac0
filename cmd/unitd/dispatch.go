package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unitd/unitd/internal/control"
)

// dispatchCommand builds a RunE for the single-argument (start/stop/
// restart) subcommands: send "<verb> <name>", print OK, surface an
// ERROR response line as a command error.
func dispatchCommand(verb string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		name := args[0]
		client := appFromContext(cmd).Control()
		var (
			lines []string
			err   error
		)
		switch verb {
		case "start":
			lines, err = client.Start(name)
		case "stop":
			lines, err = client.Stop(name)
		case "restart":
			lines, err = client.Restart(name)
		}
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("no response for unit %q", name)
		}
		if control.IsError(lines[0]) {
			return fmt.Errorf("%s", lines[0])
		}
		fmt.Println(lines[0])
		return nil
	}
}
