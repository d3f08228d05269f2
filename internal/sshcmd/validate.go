// Package sshcmd builds the exact command strings sent to remote hosts.
// Nothing here ever trusts a caller-supplied string: every interpolated
// value is validated first, then shell-quoted through go-shellquote.
// Inputs that fail validation produce no command at all (fail closed).
package sshcmd

import (
	"net"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var (
	hostnamePattern  = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	usernamePattern  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,31}$`)
	pathCharPattern  = regexp.MustCompile(`^[A-Za-z0-9/_.\-]+$`)
	stackNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)
	envNamePattern   = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,63}$`)

	// denyCharset lists shell metacharacters rejected outright before any
	// quoting is attempted, rather than relying on the quoter alone.
	denyCharset = ";&|`$()<>*?[~"
)

var reservedStackNames = map[string]bool{
	"docker": true, "compose": true, "system": true,
	"network": true, "volume": true, "config": true,
}

// AllowedDockerCommands is the allow-list for the top-level docker
// subcommand in any remote command this package builds.
var AllowedDockerCommands = map[string]bool{
	"ps": true, "logs": true, "start": true, "stop": true, "restart": true,
	"stats": true, "compose": true, "pull": true, "build": true,
	"inspect": true, "images": true, "exec": true, "run": true, "rm": true,
	"kill": true, "pause": true, "unpause": true,
}

// AllowedComposeSubcommands is the allow-list for `docker compose <sub>`.
var AllowedComposeSubcommands = map[string]bool{
	"up": true, "down": true, "ps": true, "logs": true, "build": true,
	"pull": true, "restart": true, "stop": true, "start": true,
	"exec": true, "run": true,
}

func containsDenied(s string) bool {
	return strings.ContainsAny(s, denyCharset)
}

// Hostname validates an RFC-1123 label chain or an IPv4/IPv6 address
// (IPv6 without brackets), returning the input unchanged on success.
func Hostname(h string) (string, error) {
	if h == "" || len(h) > 253 {
		return "", invalidf("hostname", h, "length out of range")
	}
	if ip := net.ParseIP(h); ip != nil {
		if ip.To4() != nil {
			return h, nil
		}
		// bare IPv6 literal must be bracketed by the caller when used
		// in a connection string; the hostname value itself is valid.
		return h, nil
	}
	if !hostnamePattern.MatchString(h) {
		return "", invalidf("hostname", h, "does not match RFC-1123 label chain or IPv4")
	}
	return h, nil
}

// Username validates an SSH login name.
func Username(u string) (string, error) {
	if u == "" || !usernamePattern.MatchString(u) {
		return "", invalidf("username", u, "must match ^[a-zA-Z][a-zA-Z0-9_-]{0,31}$")
	}
	return u, nil
}

// Port validates an SSH/TCP port number.
func Port(p int) (int, error) {
	if p < 1 || p > 65535 {
		return 0, invalidf("port", strconv.Itoa(p), "out of range 1..65535")
	}
	return p, nil
}

// AbsPath validates an absolute remote path: no traversal, no deny-set
// characters, restricted to a conservative path-safe character class.
func AbsPath(p string) (string, error) {
	if p == "" {
		return "", invalidf("path", p, "empty path")
	}
	if containsDenied(p) {
		return "", invalidf("path", p, "contains a deny-listed shell metacharacter")
	}
	cleaned := path.Clean(p)
	if strings.Contains(p, "..") || strings.Contains(cleaned, "..") {
		return "", invalidf("path", p, "path traversal detected")
	}
	if !strings.HasPrefix(cleaned, "/") {
		return "", invalidf("path", p, "absolute path required")
	}
	if !pathCharPattern.MatchString(cleaned) {
		return "", invalidf("path", p, "contains characters outside [A-Za-z0-9/_.-]")
	}
	if len(cleaned) > 4096 {
		return "", invalidf("path", p, "path too long")
	}
	return cleaned, nil
}

// StackName validates a Docker Compose project name and rejects names that
// collide with reserved docker/compose vocabulary.
func StackName(name string) (string, error) {
	if name == "" || !stackNamePattern.MatchString(name) {
		return "", invalidf("stack_name", name, "must match ^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$")
	}
	if reservedStackNames[strings.ToLower(name)] {
		return "", invalidf("stack_name", name, "reserved stack name")
	}
	return name, nil
}

// EnvVar validates an environment variable key/value pair.
func EnvVar(key, value string) (string, string, error) {
	if key == "" || !envNamePattern.MatchString(key) {
		return "", "", invalidf("env_key", key, "must match ^[A-Z][A-Z0-9_]{0,63}$")
	}
	if containsDenied(value) {
		return "", "", invalidf("env_value", value, "contains a deny-listed shell metacharacter")
	}
	if len(value) > 32768 {
		return "", "", invalidf("env_value", value, "value too long")
	}
	return key, value, nil
}

// DockerSubcommand validates a top-level docker subcommand against the
// allow-list.
func DockerSubcommand(cmd string) (string, error) {
	if !AllowedDockerCommands[cmd] {
		return "", invalidf("docker_command", cmd, "not in allow-list")
	}
	return cmd, nil
}

// ComposeSubcommand validates a `docker compose` subcommand against the
// allow-list.
func ComposeSubcommand(sub string) (string, error) {
	if !AllowedComposeSubcommands[sub] {
		return "", invalidf("compose_subcommand", sub, "not in allow-list")
	}
	return sub, nil
}
