package sshcmd

import (
	"strings"
	"testing"
)

func TestAbsPathRejectsDenySetAndTraversal(t *testing.T) {
	cases := []string{
		"/data/$(whoami)",
		"/data/`id`",
		"/data/foo;rm -rf /",
		"/data/foo|cat",
		"/data/foo&&echo",
		"/data/../etc/passwd",
		"/data/foo/../../etc",
		"~/secrets",
		"/data/foo*",
		"/data/foo?",
	}
	for _, in := range cases {
		out, err := AbsPath(in)
		if err == nil {
			t.Fatalf("AbsPath(%q) = %q, nil; want InvalidInputError", in, out)
		}
		if _, ok := err.(*InvalidInputError); !ok {
			t.Fatalf("AbsPath(%q) error type = %T, want *InvalidInputError", in, err)
		}
		if out != "" {
			t.Fatalf("AbsPath(%q) returned non-empty path %q on error", in, out)
		}
	}
}

func TestAbsPathAcceptsCleanAbsolutePaths(t *testing.T) {
	cases := map[string]string{
		"/data/stacks/myapp":  "/data/stacks/myapp",
		"/data/stacks/myapp/": "/data/stacks/myapp",
		"/var/lib/docker":     "/var/lib/docker",
	}
	for in, want := range cases {
		out, err := AbsPath(in)
		if err != nil {
			t.Fatalf("AbsPath(%q) unexpected error: %v", in, err)
		}
		if out != want {
			t.Fatalf("AbsPath(%q) = %q, want %q", in, out, want)
		}
	}
}

func TestAbsPathRejectsRelative(t *testing.T) {
	if _, err := AbsPath("relative/path"); err == nil {
		t.Fatal("expected error for relative path")
	}
}

func TestHostnameValidation(t *testing.T) {
	good := []string{"host1", "db-01.internal", "192.168.1.10"}
	for _, h := range good {
		if _, err := Hostname(h); err != nil {
			t.Errorf("Hostname(%q) unexpected error: %v", h, err)
		}
	}
	bad := []string{"", "host$(whoami)", "host;rm", strings.Repeat("a", 300)}
	for _, h := range bad {
		if _, err := Hostname(h); err == nil {
			t.Errorf("Hostname(%q) expected error, got none", h)
		}
	}
}

func TestStackNameRejectsReserved(t *testing.T) {
	for _, name := range []string{"docker", "compose", "system", "network", "volume", "config", "DOCKER"} {
		if _, err := StackName(name); err == nil {
			t.Errorf("StackName(%q) expected reserved-name error, got none", name)
		}
	}
	if _, err := StackName("my-app_1"); err != nil {
		t.Errorf("StackName(%q) unexpected error: %v", "my-app_1", err)
	}
}

func TestDockerAndComposeSubcommandAllowList(t *testing.T) {
	if _, err := DockerSubcommand("ps"); err != nil {
		t.Errorf("DockerSubcommand(ps) unexpected error: %v", err)
	}
	if _, err := DockerSubcommand("rm -rf"); err == nil {
		t.Error("DockerSubcommand(rm -rf) expected error, got none")
	}
	if _, err := ComposeSubcommand("up"); err != nil {
		t.Errorf("ComposeSubcommand(up) unexpected error: %v", err)
	}
	if _, err := ComposeSubcommand("evil"); err == nil {
		t.Error("ComposeSubcommand(evil) expected error, got none")
	}
}

func TestEnvVarRejectsDeniedValue(t *testing.T) {
	if _, _, err := EnvVar("FOO", "bar$(whoami)"); err == nil {
		t.Error("EnvVar with command substitution expected error, got none")
	}
	if _, _, err := EnvVar("foo", "bar"); err == nil {
		t.Error("EnvVar with lowercase key expected error, got none")
	}
	k, v, err := EnvVar("COMPOSE_PROJECT_NAME", "myapp")
	if err != nil || k != "COMPOSE_PROJECT_NAME" || v != "myapp" {
		t.Errorf("EnvVar(COMPOSE_PROJECT_NAME, myapp) = (%q, %q, %v)", k, v, err)
	}
}

func TestPortRange(t *testing.T) {
	if _, err := Port(0); err == nil {
		t.Error("Port(0) expected error")
	}
	if _, err := Port(65536); err == nil {
		t.Error("Port(65536) expected error")
	}
	if p, err := Port(22); err != nil || p != 22 {
		t.Errorf("Port(22) = (%d, %v), want (22, nil)", p, err)
	}
}
