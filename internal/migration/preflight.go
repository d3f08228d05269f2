package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/artemis/fleetmigrate/internal/sshcmd"
)

// requiredTools are the binaries P4 checks for on the target host.
var requiredTools = []string{"docker", "tar", "rsync"}

// CheckStatus is the outcome of one named preflight check.
type CheckStatus string

const (
	CheckPassed  CheckStatus = "passed"
	CheckWarning CheckStatus = "warning"
	CheckFailed  CheckStatus = "failed"
)

// Check is a single preflight result; RunPreflight collects every Check
// into its PreflightResult.
type Check struct {
	Name      string      `json:"name"`
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message"`
	IsBlocker bool        `json:"is_blocker"`
}

// PreflightResult aggregates every P4 check.
type PreflightResult struct {
	Checks     []Check
	Warnings   []string
	Blockers   []string
	CanProceed bool
}

// RunPreflight executes disk-space, required-tool, and docker-reachability
// checks against the target host. requiredBytes is the data volume P10
// expects to transfer; a 20% safety margin is required on top of it.
func RunPreflight(ctx context.Context, exec *executor.Executor, target config.Host, requiredBytes int64) (PreflightResult, error) {
	checks := []struct {
		name string
		fn   func(context.Context, *executor.Executor, config.Host, int64) Check
	}{
		{"disk_space", checkDiskSpace},
		{"required_tools", checkRequiredTools},
		{"docker_reachable", checkDockerReachable},
	}

	result := PreflightResult{CanProceed: true}
	for _, c := range checks {
		check := c.fn(ctx, exec, target, requiredBytes)
		result.Checks = append(result.Checks, check)
		switch check.Status {
		case CheckWarning:
			result.Warnings = append(result.Warnings, check.Message)
		case CheckFailed:
			if check.IsBlocker {
				result.Blockers = append(result.Blockers, check.Message)
				result.CanProceed = false
			}
		}
	}
	return result, nil
}

func checkDiskSpace(ctx context.Context, exec *executor.Executor, target config.Host, requiredBytes int64) Check {
	res, err := exec.Run(ctx, target, fmt.Sprintf("df -P %s | tail -1 | awk '{print $4}'", shq(target.AppdataPath)), executor.RunOptions{Timeout: executor.ShortTimeout})
	if err != nil {
		return Check{Name: "disk_space", IsBlocker: true, Status: CheckFailed, Message: fmt.Sprintf("disk space probe failed: %v", err)}
	}

	availableKB, convErr := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
	if convErr != nil {
		return Check{Name: "disk_space", IsBlocker: true, Status: CheckFailed, Message: fmt.Sprintf("could not parse df output %q", res.Stdout)}
	}
	return evaluateDiskSpace(availableKB*1024, requiredBytes)
}

// evaluateDiskSpace applies the 20% safety margin to requiredBytes and
// compares it against the bytes df reported available on the target.
func evaluateDiskSpace(availableBytes, requiredBytes int64) Check {
	check := Check{Name: "disk_space", IsBlocker: true}
	required := int64(float64(requiredBytes) * 1.2)

	if availableBytes < required {
		check.Status = CheckFailed
		check.Message = fmt.Sprintf("insufficient disk space: need %d bytes (with 20%% margin), have %d", required, availableBytes)
		return check
	}
	check.Status = CheckPassed
	check.Message = fmt.Sprintf("%d bytes available, %d required", availableBytes, required)
	return check
}

func checkRequiredTools(ctx context.Context, exec *executor.Executor, target config.Host, _ int64) Check {
	check := Check{Name: "required_tools", IsBlocker: true}

	var missing []string
	for _, tool := range requiredTools {
		res, err := exec.Run(ctx, target, fmt.Sprintf("command -v %s", tool), executor.RunOptions{Timeout: executor.ShortTimeout})
		if err != nil || res.ExitCode != 0 {
			missing = append(missing, tool)
		}
	}

	if len(missing) > 0 {
		check.Status = CheckFailed
		check.Message = fmt.Sprintf("missing required tools: %s", strings.Join(missing, ", "))
		return check
	}
	check.Status = CheckPassed
	check.Message = "all required tools present"
	return check
}

func checkDockerReachable(ctx context.Context, exec *executor.Executor, target config.Host, _ int64) Check {
	check := Check{Name: "docker_reachable", IsBlocker: true}

	res, err := exec.Run(ctx, target, "docker info", executor.RunOptions{Timeout: executor.DockerTimeout})
	if err != nil || res.ExitCode != 0 {
		check.Status = CheckFailed
		check.Message = "docker daemon not reachable on target"
		return check
	}
	check.Status = CheckPassed
	check.Message = "docker daemon reachable"
	return check
}

// shq is a minimal single-quote shell-escape for the read-only probe
// commands in this file; destructive commands never go through it,
// they go through sshcmd's validators instead.
func shq(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// NetworkProbeResult is what ProbeNetwork reports for P5: the SSH
// round-trip latency to both hosts, the throughput of a 1 MiB probe from
// source to target, and the transfer duration EstimateTransferTime
// derives from it.
type NetworkProbeResult struct {
	SourceRoundTrip time.Duration
	TargetRoundTrip time.Duration
	ThroughputMbps  int
	Estimate        time.Duration
}

// ProbeNetwork measures SSH round-trip time to both hosts and a 1 MiB
// transfer between them, then estimates the full transfer duration for
// the given payload size.
func ProbeNetwork(ctx context.Context, exec *executor.Executor, source, target config.Host, totalBytes int64) (NetworkProbeResult, error) {
	var result NetworkProbeResult

	start := time.Now()
	if _, err := exec.Run(ctx, source, "true", executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil {
		return result, fmt.Errorf("network probe: source round-trip: %w", err)
	}
	result.SourceRoundTrip = time.Since(start)

	start = time.Now()
	if _, err := exec.Run(ctx, target, "true", executor.RunOptions{Timeout: executor.ShortTimeout}); err != nil {
		return result, fmt.Errorf("network probe: target round-trip: %w", err)
	}
	result.TargetRoundTrip = time.Since(start)

	// The registry file is operator-supplied; these fields go through the
	// same validators every other interpolated value does before they can
	// reach a command string.
	user, err := sshcmd.Username(target.User)
	if err != nil {
		return result, fmt.Errorf("network probe: %w", err)
	}
	hostname, err := sshcmd.Hostname(target.Hostname)
	if err != nil {
		return result, fmt.Errorf("network probe: %w", err)
	}
	port, err := sshcmd.Port(target.Port)
	if err != nil {
		return result, fmt.Errorf("network probe: %w", err)
	}

	probeCmd := fmt.Sprintf("dd if=/dev/zero bs=1M count=1 2>/dev/null | ssh -o BatchMode=yes -p %d %s@%s 'cat > /dev/null' && echo done",
		port, user, hostname)
	probeStart := time.Now()
	res, err := exec.Run(ctx, source, probeCmd, executor.RunOptions{Timeout: executor.ShortTimeout})
	elapsed := time.Since(probeStart)
	if err != nil || res.ExitCode != 0 || elapsed <= 0 {
		result.ThroughputMbps = 100
	} else {
		mib := 1.0
		seconds := elapsed.Seconds()
		if seconds <= 0 {
			seconds = 0.001
		}
		result.ThroughputMbps = int((mib * 8) / seconds)
		if result.ThroughputMbps <= 0 {
			result.ThroughputMbps = 100
		}
	}

	result.Estimate = EstimateTransferTime(totalBytes, result.ThroughputMbps)
	return result, nil
}
