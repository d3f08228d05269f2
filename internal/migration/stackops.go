package migration

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/artemis/fleetmigrate/internal/sshcmd"
)

// ManageAction is one docker-compose lifecycle action ManageStack can run
// against an already-deployed stack, plus the synthetic ActionStatus which
// has no compose subcommand of its own.
type ManageAction string

const (
	ActionUp      ManageAction = "up"
	ActionDown    ManageAction = "down"
	ActionStart   ManageAction = "start"
	ActionStop    ManageAction = "stop"
	ActionRestart ManageAction = "restart"
	ActionStatus  ManageAction = "status"
)

// GetCompose fetches stackName's docker-compose text from host, trying
// both the .yml and .yaml extensions docker compose itself recognizes.
func GetCompose(ctx context.Context, exec *executor.Executor, host config.Host, stackName string) (string, error) {
	stackDir, err := stackDirFor(host, stackName)
	if err != nil {
		return "", err
	}

	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml"} {
		res, err := exec.Run(ctx, host, fmt.Sprintf("cat %s/%s 2>/dev/null", shq(stackDir), name), executor.RunOptions{Timeout: executor.ShortTimeout})
		if err == nil && strings.TrimSpace(res.Stdout) != "" {
			return res.Stdout, nil
		}
	}
	return "", fmt.Errorf("get_compose: no docker-compose.yml or .yaml found under %s", stackDir)
}

// ListStacks enumerates every stack directory under host's appdata path, a
// stack being any immediate subdirectory holding a docker-compose.yml or
// .yaml.
func ListStacks(ctx context.Context, exec *executor.Executor, host config.Host) ([]string, error) {
	cmd := fmt.Sprintf(`find %s -maxdepth 2 \( -name docker-compose.yml -o -name docker-compose.yaml \) 2>/dev/null`, shq(host.AppdataPath))
	res, err := exec.Run(ctx, host, cmd, executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		return nil, fmt.Errorf("list_stacks: %w", err)
	}

	var stacks []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		stacks = append(stacks, path.Base(path.Dir(line)))
	}
	return stacks, nil
}

// ManageStack runs one docker-compose lifecycle action against a stack
// already deployed on host. MigrateStack's own phases call this for the
// same up/down transitions rather than building the command twice.
func ManageStack(ctx context.Context, exec *executor.Executor, host config.Host, stackName string, action ManageAction) (string, error) {
	stackDir, err := stackDirFor(host, stackName)
	if err != nil {
		return "", err
	}

	if action == ActionStatus {
		res, err := exec.Run(ctx, host, fmt.Sprintf("docker ps --filter label=com.docker.compose.project=%s --format '{{.Names}}: {{.Status}}'", shq(stackName)), executor.RunOptions{Timeout: executor.DockerTimeout})
		if err != nil {
			return "", fmt.Errorf("manage_stack: status: %w", err)
		}
		return res.Stdout, nil
	}

	opts := sshcmd.DockerComposeOpts{StackName: stackName, WorkingDir: stackDir, Subcommand: string(action)}
	if action == ActionUp {
		opts.ExtraArgs = []string{"-d", "--pull", "always"}
	}

	cmd, err := sshcmd.DockerCompose(opts)
	if err != nil {
		return "", fmt.Errorf("manage_stack: %w", err)
	}
	res, err := exec.Run(ctx, host, cmd, executor.RunOptions{Timeout: executor.DockerTimeout})
	if err != nil {
		return "", fmt.Errorf("manage_stack: %w", err)
	}
	return res.Stdout, nil
}

// DeployStack writes composeText to stackName's directory on host and
// brings it up, the same write-then-up sequence P13 runs against a
// migration's target, exposed standalone so the dispatcher can deploy a
// stack that never arrived via a migration.
func DeployStack(ctx context.Context, exec *executor.Executor, host config.Host, stackName, composeText string) error {
	stackDir, err := stackDirFor(host, stackName)
	if err != nil {
		return err
	}

	mkdirCmd := fmt.Sprintf("mkdir -p %s", shq(stackDir))
	if _, err := exec.Run(ctx, host, mkdirCmd, executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil {
		return fmt.Errorf("deploy_stack: %w", err)
	}

	heredoc := fmt.Sprintf("cat > %s/docker-compose.yml <<'FLEETMIGRATE_EOF'\n%s\nFLEETMIGRATE_EOF", shq(stackDir), composeText)
	if _, err := exec.Run(ctx, host, heredoc, executor.RunOptions{Timeout: executor.ArchiveTimeout}); err != nil {
		return fmt.Errorf("deploy_stack: write compose: %w", err)
	}

	if _, err := ManageStack(ctx, exec, host, stackName, ActionUp); err != nil {
		return fmt.Errorf("deploy_stack: %w", err)
	}
	return nil
}

func stackDirFor(host config.Host, stackName string) (string, error) {
	name, err := sshcmd.StackName(stackName)
	if err != nil {
		return "", err
	}
	return host.AppdataPath + "/" + name, nil
}
