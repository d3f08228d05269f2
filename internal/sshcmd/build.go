package sshcmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/kballard/go-shellquote"
)

// SSHBaseArgs returns the argv for the outer `ssh` invocation used to reach
// host, hardened against interactive prompts and silent password fallback:
// host-key checking stays on, batch mode refuses any password prompt, and a
// control-master socket lets repeated ssh invocations to the same host
// share one TCP connection.
func SSHBaseArgs(h config.Host) ([]string, error) {
	hostname, err := Hostname(h.Hostname)
	if err != nil {
		return nil, err
	}
	user, err := Username(h.User)
	if err != nil {
		return nil, err
	}
	port, err := Port(h.Port)
	if err != nil {
		return nil, err
	}

	args := []string{
		"ssh",
		"-o", "StrictHostKeyChecking=yes",
		"-o", "BatchMode=yes",
		"-o", "PasswordAuthentication=no",
		"-o", "PreferredAuthentications=publickey",
		"-o", "ConnectTimeout=10",
		"-o", "ServerAliveInterval=60",
		"-o", "ServerAliveCountMax=3",
		"-o", "ControlMaster=auto",
		"-o", fmt.Sprintf("ControlPath=~/.ssh/cm-%s-%s-%d", user, hostname, port),
		"-o", "ControlPersist=10m",
		"-p", fmt.Sprintf("%d", port),
	}
	if h.IdentityFile != "" {
		idPath, err := AbsPath(h.IdentityFile)
		if err != nil {
			return nil, err
		}
		args = append(args, "-i", idPath)
	}
	args = append(args, fmt.Sprintf("%s@%s", user, hostname))
	return args, nil
}

// RemoteCDThenExec builds a single shell command string that cd's into dir,
// exports the given environment variables, then runs parts. Every component
// is validated and shell-quoted before concatenation; env keys are sorted so
// the resulting command string is deterministic (useful for audit hashing
// and for tests).
func RemoteCDThenExec(dir string, parts []string, env map[string]string) (string, error) {
	cleanDir, err := AbsPath(dir)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", invalidf("command_parts", "", "no command parts given")
	}

	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(shellquote.Join(cleanDir))
	b.WriteString(" && ")

	if len(env) > 0 {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			validKey, validVal, err := EnvVar(k, env[k])
			if err != nil {
				return "", err
			}
			b.WriteString(validKey)
			b.WriteString("=")
			b.WriteString(shellquote.Join(validVal))
			b.WriteString(" ")
		}
	}

	b.WriteString(shellquote.Join(parts...))

	out := b.String()
	if len(out) > 4096 {
		return "", invalidf("command", out, "exceeds 4096-byte remote command cap")
	}
	return out, nil
}

// DockerComposeOpts parameterizes a single `docker compose` invocation.
type DockerComposeOpts struct {
	StackName  string
	WorkingDir string
	Subcommand string
	ExtraArgs  []string
	Env        map[string]string
}

// DockerCompose builds the full remote command string for a single
// `docker compose <subcommand>` call scoped to a stack's working directory.
func DockerCompose(opts DockerComposeOpts) (string, error) {
	stackName, err := StackName(opts.StackName)
	if err != nil {
		return "", err
	}
	sub, err := ComposeSubcommand(opts.Subcommand)
	if err != nil {
		return "", err
	}
	for _, a := range opts.ExtraArgs {
		if containsDenied(a) {
			return "", invalidf("compose_arg", a, "contains a deny-listed shell metacharacter")
		}
	}

	parts := []string{"docker", "compose", "-p", stackName, sub}
	parts = append(parts, opts.ExtraArgs...)

	return RemoteCDThenExec(opts.WorkingDir, parts, opts.Env)
}
