package sshcmd

import (
	"strings"
	"testing"

	"github.com/artemis/fleetmigrate/internal/config"
)

func TestSSHBaseArgsRejectsInvalidHost(t *testing.T) {
	h := config.Host{Hostname: "bad;host", User: "deploy", Port: 22}
	if _, err := SSHBaseArgs(h); err == nil {
		t.Fatal("expected error for invalid hostname")
	}
}

func TestSSHBaseArgsHardening(t *testing.T) {
	h := config.Host{Hostname: "db01.internal", User: "deploy", Port: 2222, IdentityFile: "/home/deploy/.ssh/id_ed25519"}
	args, err := SSHBaseArgs(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"StrictHostKeyChecking=yes",
		"BatchMode=yes",
		"PasswordAuthentication=no",
		"-p 2222",
		"deploy@db01.internal",
		"-i /home/deploy/.ssh/id_ed25519",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("SSHBaseArgs() = %q, missing %q", joined, want)
		}
	}
}

func TestRemoteCDThenExecRejectsBadDir(t *testing.T) {
	if _, err := RemoteCDThenExec("relative", []string{"docker", "ps"}, nil); err == nil {
		t.Fatal("expected error for relative dir")
	}
}

func TestRemoteCDThenExecQuotesArguments(t *testing.T) {
	cmd, err := RemoteCDThenExec("/data/stacks/myapp", []string{"docker", "ps", "--filter", "name=my app"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(cmd, "cd /data/stacks/myapp && ") {
		t.Fatalf("command missing cd prefix: %q", cmd)
	}
	if !strings.Contains(cmd, "'name=my app'") {
		t.Fatalf("expected quoted argument with embedded space, got: %q", cmd)
	}
}

func TestRemoteCDThenExecSortsEnvDeterministically(t *testing.T) {
	env := map[string]string{"BETA": "2", "ALPHA": "1"}
	cmd, err := RemoteCDThenExec("/data/stacks/myapp", []string{"docker", "ps"}, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	alphaIdx := strings.Index(cmd, "ALPHA=1")
	betaIdx := strings.Index(cmd, "BETA=2")
	if alphaIdx == -1 || betaIdx == -1 || alphaIdx > betaIdx {
		t.Fatalf("expected ALPHA before BETA in %q", cmd)
	}
}

func TestRemoteCDThenExecRejectsDeniedEnvValue(t *testing.T) {
	env := map[string]string{"FOO": "$(whoami)"}
	if _, err := RemoteCDThenExec("/data/stacks/myapp", []string{"docker", "ps"}, env); err == nil {
		t.Fatal("expected error for command substitution in env value")
	}
}

func TestDockerComposeRejectsReservedStackName(t *testing.T) {
	_, err := DockerCompose(DockerComposeOpts{
		StackName:  "compose",
		WorkingDir: "/data/stacks/compose",
		Subcommand: "up",
	})
	if err == nil {
		t.Fatal("expected error for reserved stack name")
	}
}

func TestDockerComposeBuildsExpectedCommand(t *testing.T) {
	cmd, err := DockerCompose(DockerComposeOpts{
		StackName:  "myapp",
		WorkingDir: "/data/stacks/myapp",
		Subcommand: "up",
		ExtraArgs:  []string{"-d"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "cd /data/stacks/myapp && docker compose -p myapp up -d"
	if cmd != want {
		t.Fatalf("DockerCompose() = %q, want %q", cmd, want)
	}
}

func TestDockerComposeRejectsDisallowedSubcommand(t *testing.T) {
	_, err := DockerCompose(DockerComposeOpts{
		StackName:  "myapp",
		WorkingDir: "/data/stacks/myapp",
		Subcommand: "rm; rm -rf /",
	})
	if err == nil {
		t.Fatal("expected error for disallowed subcommand")
	}
}
