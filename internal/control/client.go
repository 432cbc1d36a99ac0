package control

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// Client is the consumer side of the control-socket protocol: the
// cmd/unitd subcommands (list/start/stop/restart/status/shutdown) are
// thin wrappers around one Client.Send call each, the same shape as
// the teacher's cobra commands calling into systemd.StartUnit.
type Client struct {
	Path    string
	Timeout time.Duration
}

// NewClient creates a Client bound to the manager's control-socket path.
func NewClient(path string) *Client {
	return &Client{Path: path, Timeout: 5 * time.Second}
}

// Send dials the control socket, writes a single command line, and
// returns every response line up to the terminating blank line.
func (c *Client) Send(command string) ([]string, error) {
	conn, err := net.DialTimeout("unix", c.Path, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", c.Path, err)
	}
	defer conn.Close()

	if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	if _, err := fmt.Fprintf(conn, "%s\n", command); err != nil {
		return nil, fmt.Errorf("control: write command: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("control: read response: %w", err)
	}
	return lines, nil
}

// List sends "list".
func (c *Client) List() ([]string, error) { return c.Send("list") }

// Status sends "status <name>".
func (c *Client) Status(name string) ([]string, error) { return c.Send("status " + name) }

// Start sends "start <name>".
func (c *Client) Start(name string) ([]string, error) { return c.Send("start " + name) }

// Stop sends "stop <name>".
func (c *Client) Stop(name string) ([]string, error) { return c.Send("stop " + name) }

// Restart sends "restart <name>".
func (c *Client) Restart(name string) ([]string, error) { return c.Send("restart " + name) }

// Shutdown sends "shutdown".
func (c *Client) Shutdown() ([]string, error) { return c.Send("shutdown") }

// IsError reports whether a response line is an ERROR: line.
func IsError(line string) bool { return strings.HasPrefix(line, "ERROR:") }
