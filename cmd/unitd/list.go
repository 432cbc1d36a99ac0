package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/unitd/unitd/internal/control"
)

// statusCaser title-cases a unit's raw hyphenated status
// ("stopped-final") for display, the same cases.Title(language.English)
// the teacher's DefaultTextCaser wraps in internal/systemd/providers.go.
var statusCaser = cases.Title(language.English)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every unit the daemon manages, with its current status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lines, err := appFromContext(cmd).Control().List()
			if err != nil {
				return err
			}
			printUnitTable(lines)
			return nil
		},
	}
}

// printUnitTable renders the control socket's tab-delimited
// name/status/pid[/reason][/notify-status] lines, coloring the status
// column the way the teacher's list.go colors its header/first column
// with fatih/color and rodaine/table.
func printUnitTable(lines []string) {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	nameFmt := color.New(color.FgYellow).SprintfFunc()

	tbl := table.New("Name", "Status", "PID", "Detail")
	tbl.WithHeaderFormatter(headerFmt).WithFirstColumnFormatter(nameFmt)

	for _, line := range lines {
		if control.IsError(line) {
			continue
		}
		name, status, pid, detail := parseRecordLine(line)
		tbl.AddRow(name, statusColor(status)(statusCaser.String(status)), pid, detail)
	}

	tbl.Print()
}

// parseRecordLine splits one control-socket response line
// ("name\tstatus\tpid=N[\treason=R][\tstatus=notify-text]") into its
// display columns.
func parseRecordLine(line string) (name, status, pid, detail string) {
	fields := strings.Split(line, "\t")
	name = fields[0]
	var detailParts []string
	for _, f := range fields[1:] {
		switch {
		case strings.HasPrefix(f, "pid="):
			pid = strings.TrimPrefix(f, "pid=")
		case strings.HasPrefix(f, "reason=") || strings.HasPrefix(f, "status="):
			detailParts = append(detailParts, f)
		default:
			status = f
		}
	}
	return name, status, pid, strings.Join(detailParts, " ")
}

// statusColor picks a display color for a unit status, matching the
// severity a reader would expect: green once started, red once
// permanently stopped, yellow for every in-between transition.
func statusColor(status string) func(format string, a ...interface{}) string {
	switch status {
	case "started":
		return color.New(color.FgGreen).SprintfFunc()
	case "stopped-final":
		return color.New(color.FgRed).SprintfFunc()
	default:
		return color.New(color.FgYellow).SprintfFunc()
	}
}
