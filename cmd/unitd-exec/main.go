// Command unitd-exec is the narrow helper-executor binary (spec.md §6):
// it receives a JSON-encoded ServiceConfig and environment array on its
// command line, applies privilege drop and environment setup, and
// execs the target commandline. It never returns on success.
//
// Deliberately a plain `flag`-based main rather than a cobra command
// (the teacher keeps minimal standalone binaries like `cmd/quadlet/main.go`
// alongside its cobra-based main CLI for the same reason: this sits on
// the hot fork/exec path and must stay small and fast-starting).
//
// Grounded on rustysd's src/bin/rsdexec.rs and src/bin/sdexec.rs: parse
// --command/--cmd_idx/--conf/--env, drop privileges if root, set env,
// execvp the resolved commandline.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/unitd/unitd/internal/execproto"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("unitd-exec", flag.ContinueOnError)
	command := fs.String("command", "", "lifecycle phase: start|stop|startpre|startpost|stoppost")
	cmdIdx := fs.Int("cmd_idx", -1, "index into the phase's command array")
	confJSON := fs.String("conf", "", "JSON-encoded ServiceConfig")
	envJSON := fs.String("env", "", "JSON-encoded []EnvVar")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "unitd-exec:", err)
		return 1
	}

	conf, err := execproto.DecodeConf(*confJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unitd-exec: decoding --conf:", err)
		return 1
	}
	env, err := execproto.DecodeEnv(*envJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unitd-exec: decoding --env:", err)
		return 1
	}

	req := execproto.Request{Command: execproto.Phase(*command), CmdIdx: *cmdIdx, Conf: conf, Env: env}
	target, ok := req.CommandFor()
	if !ok {
		fmt.Fprintf(os.Stderr, "unitd-exec: no command for phase %q index %d\n", *command, *cmdIdx)
		return 1
	}

	// LISTEN_PID must name the pid of the process that ultimately execs
	// the target; only known accurately here, not at fork time in the
	// manager (see DESIGN.md "LISTEN_PID injection point").
	if err := os.Setenv("LISTEN_PID", strconv.Itoa(os.Getpid())); err != nil {
		fmt.Fprintln(os.Stderr, "unitd-exec: setenv LISTEN_PID:", err)
		return 1
	}

	if unix.Getuid() == 0 {
		if err := dropPrivileges(conf.ExecConfig); err != nil {
			fmt.Fprintln(os.Stderr, "unitd-exec: dropping privileges:", err)
			return 1
		}
	}

	for _, e := range env {
		if err := os.Setenv(e.Name, e.Value); err != nil {
			fmt.Fprintln(os.Stderr, "unitd-exec: setenv:", err)
			return 1
		}
	}

	if err := applyRedirects(conf.ExecConfig); err != nil {
		fmt.Fprintln(os.Stderr, "unitd-exec: redirecting stdio:", err)
		return 1
	}

	argv := append([]string{target.Cmd}, target.Args...)
	if err := syscall.Exec(target.Cmd, argv, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, "unitd-exec: exec:", err)
		return 1
	}
	return 0 // unreachable on success
}

// dropPrivileges applies supplementary groups, then gid, then uid, in
// that order (spec.md §9 "supplementary groups, gid, uid in that
// order" — the kernel's own credential-setting order inside setresuid
// family calls, mirrored here explicitly since Go does not apply it
// for us).
func dropPrivileges(ec execproto.ExecConfig) error {
	if ec.Group == "" && ec.User == "" && len(ec.SupplementaryGroups) == 0 {
		return nil
	}

	if len(ec.SupplementaryGroups) > 0 {
		gids := make([]int, 0, len(ec.SupplementaryGroups))
		for _, g := range ec.SupplementaryGroups {
			gid, err := lookupGID(g)
			if err != nil {
				return err
			}
			gids = append(gids, gid)
		}
		if err := syscall.Setgroups(gids); err != nil {
			return fmt.Errorf("setgroups: %w", err)
		}
	}

	if ec.Group != "" {
		gid, err := lookupGID(ec.Group)
		if err != nil {
			return err
		}
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("setgid: %w", err)
		}
	}

	if ec.User != "" {
		uid, err := lookupUID(ec.User)
		if err != nil {
			return err
		}
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("setuid: %w", err)
		}
	}
	return nil
}

func applyRedirects(ec execproto.ExecConfig) error {
	if err := applyRedirect(ec.Stdout, unix.Stdout); err != nil {
		return fmt.Errorf("stdout: %w", err)
	}
	if err := applyRedirect(ec.Stderr, unix.Stderr); err != nil {
		return fmt.Errorf("stderr: %w", err)
	}
	return nil
}

func applyRedirect(r execproto.Redirect, targetFD int) error {
	var flags int
	switch r.Kind {
	case "none":
		return nil
	case "file":
		flags = unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC
	case "append-file":
		flags = unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND
	default:
		return fmt.Errorf("unknown redirect kind %q", r.Kind)
	}
	fd, err := unix.Open(r.Path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.Path, err)
	}
	defer unix.Close(fd)
	return unix.Dup2(fd, targetFD)
}

func lookupUID(name string) (int, error) {
	if strings.TrimSpace(name) == "" {
		return -1, fmt.Errorf("empty user name")
	}
	u, err := userLookup(name)
	if err != nil {
		return -1, err
	}
	return u, nil
}

func lookupGID(name string) (int, error) {
	if strings.TrimSpace(name) == "" {
		return -1, fmt.Errorf("empty group name")
	}
	g, err := groupLookup(name)
	if err != nil {
		return -1, err
	}
	return g, nil
}
