package execproto

import "github.com/unitd/unitd/internal/unitmodel"

// FromServiceConfig builds the wire ServiceConfig the Starter embeds in
// a helper invocation's --conf flag.
func FromServiceConfig(c *unitmodel.ServiceConfig) ServiceConfig {
	return ServiceConfig{
		Cmd:       c.Cmd,
		Args:      c.Args,
		Prefixes:  c.Prefixes,
		StartPre:  fromCommands(c.PreStart),
		StartPost: fromCommands(c.PostStart),
		Stop:      fromCommands(c.Stop),
		StopPost:  fromCommands(c.PostStop),
		ExecConfig: ExecConfig{
			User:                c.Exec.User,
			Group:               c.Exec.Group,
			SupplementaryGroups: c.Exec.SupplementaryGroups,
			Stdout:              fromRedirect(c.Exec.Stdout),
			Stderr:              fromRedirect(c.Exec.Stderr),
		},
		Sockets: c.Sockets,
	}
}

func fromCommands(cmds []unitmodel.Command) []Command {
	out := make([]Command, len(cmds))
	for i, c := range cmds {
		out[i] = Command{Cmd: c.Cmd, Args: c.Args}
	}
	return out
}

func fromRedirect(r unitmodel.Redirect) Redirect {
	kind := "none"
	switch r.Kind {
	case unitmodel.RedirectFile:
		kind = "file"
	case unitmodel.RedirectAppendFile:
		kind = "append-file"
	}
	return Redirect{Kind: kind, Path: r.Path}
}

// FromEnv converts unitmodel.EnvVar slices to the wire EnvVar shape.
func FromEnv(vars []unitmodel.EnvVar) []EnvVar {
	out := make([]EnvVar, len(vars))
	for i, v := range vars {
		out[i] = EnvVar{Name: v.Name, Value: v.Value}
	}
	return out
}
